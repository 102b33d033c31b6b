package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"taskweb/internal/client"
	"taskweb/internal/client/apiclient"
	"taskweb/internal/client/gate"
	"taskweb/internal/client/session"
	"taskweb/internal/client/store"
	"taskweb/internal/domain/model"
)

type app struct {
	out    io.Writer
	prompt io.Writer
	logger *slog.Logger

	api     *apiclient.Client
	session *session.Manager
	gate    *gate.TransitionGate
}

func newApp(cfg clientConfig, out, prompt io.Writer, logger *slog.Logger) *app {
	api := apiclient.New(cfg.Server, logger)
	sess := session.NewManager(store.NewFileStore(cfg.SessionFile), api, logger)
	api.SetTokenSource(sess)

	return &app{
		out:     out,
		prompt:  prompt,
		logger:  logger,
		api:     api,
		session: sess,
		gate:    gate.NewTransitionGate(sess, api),
	}
}

func (a *app) rootCommand() *command {
	return &command{
		name:    "taskctl",
		summary: "Manage taskweb tasks from the terminal.",
		subcommands: []*command{
			a.loginCommand(),
			a.logoutCommand(),
			a.whoamiCommand(),
			a.tasksCommand(),
			a.usersCommand(),
			a.hashPasswordCommand(),
		},
	}
}

// currentUser returns the session user or client.ErrNotAuthenticated.
func (a *app) currentUser() (*model.User, error) {
	user := a.session.CurrentUser()
	if user == nil {
		return nil, client.ErrNotAuthenticated
	}
	return user, nil
}

// authorize runs a local permission check before a request is made. The
// server applies the same rule.
func (a *app) authorize(allowed func(*model.User) bool, action string) error {
	user, err := a.currentUser()
	if err != nil {
		return err
	}
	if !allowed(user) {
		return fmt.Errorf("%s: %w", action, client.ErrForbidden)
	}
	return nil
}

// apiErr clears the session if the server no longer accepts it.
func (a *app) apiErr(ctx context.Context, err error) error {
	return a.session.Expire(ctx, err)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) printTask(t *model.Task) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", t.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", t.Title)
	fmt.Fprintf(tw, "Slug:\t%s\n", t.Slug)
	fmt.Fprintf(tw, "Status:\t%s\n", t.Status)
	fmt.Fprintf(tw, "Creator:\t%s\n", userLabel(t.CreatorID, t.CreatorUsername))
	fmt.Fprintf(tw, "Assignee:\t%s\n", assigneeLabel(t))
	fmt.Fprintf(tw, "Due:\t%s\n", dateLabel(t.DueDate))
	if t.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", t.Description)
	}
	fmt.Fprintf(tw, "Updated:\t%s\n", t.UpdatedAt.Local().Format(time.DateTime))
	tw.Flush()
}

func (a *app) printTasks(tasks []model.Task) {
	if len(tasks) == 0 {
		a.printf("No tasks.\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tASSIGNEE\tDUE")
	for i := range tasks {
		t := &tasks[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Title, assigneeLabel(t), dateLabel(t.DueDate))
	}
	tw.Flush()
}

func (a *app) printUsers(users []model.User) {
	if len(users) == 0 {
		a.printf("No users.\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, u.Role)
	}
	tw.Flush()
}

func userLabel(id int64, username *string) string {
	if username != nil && *username != "" {
		return fmt.Sprintf("%s (%d)", *username, id)
	}
	return strconv.FormatInt(id, 10)
}

func assigneeLabel(t *model.Task) string {
	if t.AssignedToID == nil {
		return "-"
	}
	return userLabel(*t.AssignedToID, t.AssignedToUsername)
}

func dateLabel(d *time.Time) string {
	if d == nil {
		return "-"
	}
	return d.Format(time.DateOnly)
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errUsage, what, arg)
	}
	return id, nil
}

// parseDue accepts a date (2006-01-02) or an RFC 3339 timestamp.
func parseDue(value string) (*time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, value, time.Local); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid due date %q (use YYYY-MM-DD)", errUsage, value)
	}
	return &t, nil
}

func parseStatus(value string) (model.TaskStatus, error) {
	status := model.TaskStatus(strings.ToLower(strings.ReplaceAll(value, "-", "_")))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q (pending, in_progress, done)", errUsage, value)
	}
	return status, nil
}

func expectArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("%w: expected %s", errUsage, usage)
	}
	return nil
}
