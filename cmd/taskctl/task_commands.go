package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"taskweb/internal/client"
	"taskweb/internal/client/apiclient"
	"taskweb/internal/domain/authz"
	"taskweb/internal/domain/model"
)

func (a *app) tasksCommand() *command {
	return &command{
		name:    "tasks",
		summary: "List and change tasks",
		subcommands: []*command{
			a.tasksListCommand(),
			a.tasksShowCommand(),
			a.tasksCreateCommand(),
			a.tasksEditCommand(),
			a.tasksStatusCommand(),
			a.tasksAssignCommand(),
			a.tasksDeleteCommand(),
			a.tasksStatsCommand(),
			a.tasksHistoryCommand(),
		},
	}
}

func (a *app) tasksListCommand() *command {
	var (
		status string
		opts   apiclient.ListTasksOptions
	)
	return &command{
		name:    "list",
		summary: "List the tasks you can see",
		flags: func() *pflag.FlagSet {
			fs := newFlagSet("list")
			fs.StringVar(&status, "status", "", "only tasks in this status")
			fs.StringVar(&opts.Search, "search", "", "match title or description")
			fs.IntVar(&opts.Limit, "limit", 0, "maximum number of tasks")
			fs.IntVar(&opts.Offset, "offset", 0, "skip this many tasks")
			return fs
		},
		run: func(ctx context.Context, args []string) error {
			if _, err := a.currentUser(); err != nil {
				return err
			}
			if status != "" {
				s, err := parseStatus(status)
				if err != nil {
					return err
				}
				opts.Status = s
			}
			tasks, err := a.api.ListTasks(ctx, opts)
			if err != nil {
				return a.apiErr(ctx, err)
			}
			a.printTasks(tasks)
			return nil
		},
	}
}

func (a *app) tasksShowCommand() *command {
	return &command{
		name:    "show",
		summary: "Show one task",
		usage:   "<id>",
		run: func(ctx context.Context, args []string) error {
			task, err := a.fetchTask(ctx, args)
			if err != nil {
				return err
			}
			a.printTask(task)
			return nil
		},
	}
}

func (a *app) tasksCreateCommand() *command {
	var (
		in       apiclient.CreateTaskInput
		assignee int64
		due      string
	)
	return &command{
		name:    "create",
		summary: "Create a task",
		usage:   "--title <title> [--description text] [--assignee id] [--due YYYY-MM-DD]",
		flags: func() *pflag.FlagSet {
			fs := newFlagSet("create")
			fs.StringVar(&in.Title, "title", "", "task title")
			fs.StringVar(&in.Description, "description", "", "task description")
			fs.Int64Var(&assignee, "assignee", 0, "id of the user to assign")
			fs.StringVar(&due, "due", "", "due date")
			return fs
		},
		run: func(ctx context.Context, args []string) error {
			if err := a.authorize(authz.CanCreateTask, "creating tasks"); err != nil {
				return err
			}
			if strings.TrimSpace(in.Title) == "" {
				return fmt.Errorf("%w: --title is required", errUsage)
			}
			if assignee != 0 {
				if err := a.authorize(authz.CanAssignTask, "assigning tasks"); err != nil {
					return err
				}
				in.AssignedToID = &assignee
			}
			if due != "" {
				d, err := parseDue(due)
				if err != nil {
					return err
				}
				in.DueDate = d
			}

			task, err := a.api.CreateTask(ctx, in)
			if err != nil {
				return a.apiErr(ctx, err)
			}
			a.printf("Created task %d.\n", task.ID)
			a.printTask(task)
			return nil
		},
	}
}

func (a *app) tasksEditCommand() *command {
	var (
		fs                      *pflag.FlagSet
		title, description, due string
	)
	return &command{
		name:    "edit",
		summary: "Change the title, description or due date of a task",
		usage:   "<id> [--title t] [--description d] [--due YYYY-MM-DD]",
		flags: func() *pflag.FlagSet {
			fs = newFlagSet("edit")
			fs.StringVar(&title, "title", "", "new title")
			fs.StringVar(&description, "description", "", "new description")
			fs.StringVar(&due, "due", "", "new due date")
			return fs
		},
		run: func(ctx context.Context, args []string) error {
			var in apiclient.UpdateTaskInput
			if fs.Changed("title") {
				in.Title = &title
			}
			if fs.Changed("description") {
				in.Description = &description
			}
			if fs.Changed("due") {
				d, err := parseDue(due)
				if err != nil {
					return err
				}
				in.DueDate = d
			}
			if in.Title == nil && in.Description == nil && in.DueDate == nil {
				return fmt.Errorf("%w: nothing to change", errUsage)
			}

			task, err := a.fetchTask(ctx, args)
			if err != nil {
				return err
			}
			user, _ := a.currentUser()
			if !authz.CanEditTask(user, *task) {
				return fmt.Errorf("editing task %d: %w", task.ID, client.ErrForbidden)
			}

			updated, err := a.api.UpdateTask(ctx, task.ID, in)
			if err != nil {
				return a.apiErr(ctx, err)
			}
			a.printTask(updated)
			return nil
		},
	}
}

func (a *app) tasksStatusCommand() *command {
	return &command{
		name:    "status",
		summary: "Move a task to another status",
		usage:   "<id> <pending|in_progress|done>",
		run: func(ctx context.Context, args []string) error {
			if err := expectArgs(args, 2, "a task id and a status"); err != nil {
				return err
			}
			status, err := parseStatus(args[1])
			if err != nil {
				return err
			}
			task, err := a.fetchTask(ctx, args[:1])
			if err != nil {
				return err
			}

			updated, err := a.gate.ChangeStatus(ctx, *task, status)
			if err != nil {
				return err
			}
			a.printf("Task %d is now %s.\n", updated.ID, updated.Status)
			return nil
		},
	}
}

func (a *app) tasksAssignCommand() *command {
	return &command{
		name:    "assign",
		summary: "Assign a task to a user, or 'none' to unassign",
		usage:   "<id> <user-id|none>",
		run: func(ctx context.Context, args []string) error {
			if err := expectArgs(args, 2, "a task id and a user id"); err != nil {
				return err
			}
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			var assignee *int64
			if args[1] != "none" {
				userID, err := parseID(args[1], "user id")
				if err != nil {
					return err
				}
				assignee = &userID
			}
			if err := a.authorize(authz.CanAssignTask, "assigning tasks"); err != nil {
				return err
			}

			task, err := a.api.AssignTask(ctx, id, assignee)
			if err != nil {
				return a.apiErr(ctx, err)
			}
			a.printf("Task %d assignee: %s.\n", task.ID, assigneeLabel(task))
			return nil
		},
	}
}

func (a *app) tasksDeleteCommand() *command {
	return &command{
		name:    "delete",
		summary: "Delete a task",
		usage:   "<id>",
		run: func(ctx context.Context, args []string) error {
			if err := expectArgs(args, 1, "a task id"); err != nil {
				return err
			}
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			if err := a.authorize(authz.CanDeleteTask, "deleting tasks"); err != nil {
				return err
			}
			if err := a.api.DeleteTask(ctx, id); err != nil {
				return a.apiErr(ctx, err)
			}
			a.printf("Deleted task %d.\n", id)
			return nil
		},
	}
}

func (a *app) tasksStatsCommand() *command {
	return &command{
		name:    "stats",
		summary: "Count visible tasks by status",
		run: func(ctx context.Context, args []string) error {
			if _, err := a.currentUser(); err != nil {
				return err
			}
			stats, err := a.api.Stats(ctx)
			if err != nil {
				return a.apiErr(ctx, err)
			}
			a.printf("total %d, pending %d, in progress %d, done %d\n", stats.Total, stats.Pending, stats.InProgress, stats.Done)
			return nil
		},
	}
}

func (a *app) tasksHistoryCommand() *command {
	return &command{
		name:    "history",
		summary: "Show status and assignment changes of a task",
		usage:   "<id>",
		run: func(ctx context.Context, args []string) error {
			if err := expectArgs(args, 1, "a task id"); err != nil {
				return err
			}
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			if _, err := a.currentUser(); err != nil {
				return err
			}
			entries, err := a.api.History(ctx, id)
			if err != nil {
				return a.apiErr(ctx, err)
			}
			if len(entries) == 0 {
				a.printf("No history.\n")
				return nil
			}
			for _, e := range entries {
				a.printf("%s  %-14s by %d  %s -> %s\n",
					e.OccurredAt.Local().Format("2006-01-02 15:04"), e.Kind, e.ActorID, valueOrDash(e.FromValue), valueOrDash(e.ToValue))
			}
			return nil
		},
	}
}

// fetchTask loads the task named by args[0].
func (a *app) fetchTask(ctx context.Context, args []string) (*model.Task, error) {
	if err := expectArgs(args, 1, "a task id"); err != nil {
		return nil, err
	}
	id, err := parseID(args[0], "task id")
	if err != nil {
		return nil, err
	}
	if _, err := a.currentUser(); err != nil {
		return nil, err
	}
	task, err := a.api.GetTask(ctx, id)
	if err != nil {
		return nil, a.apiErr(ctx, err)
	}
	return task, nil
}

func valueOrDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
