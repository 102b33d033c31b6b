package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"taskweb/internal/client/apiclient"
	"taskweb/internal/domain/authz"
	"taskweb/internal/domain/model"
)

func (a *app) usersCommand() *command {
	var query string
	return &command{
		name:    "users",
		summary: "List users that tasks can be assigned to",
		usage:   "[--query text] | create <username> --role <role>",
		flags: func() *pflag.FlagSet {
			fs := newFlagSet("users")
			fs.StringVarP(&query, "query", "q", "", "filter by username")
			return fs
		},
		subcommands: []*command{a.usersCreateCommand()},
		run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unexpected argument %q", errUsage, args[0])
			}
			if err := a.authorize(authz.CanAssignTask, "listing users"); err != nil {
				return err
			}

			var (
				users []model.User
				err   error
			)
			if query != "" {
				users, err = a.api.SearchUsers(ctx, query)
			} else {
				users, err = a.api.ListUsers(ctx)
			}
			if err != nil {
				return a.apiErr(ctx, err)
			}
			a.printUsers(users)
			return nil
		},
	}
}

func (a *app) usersCreateCommand() *command {
	var (
		role         string
		passwordFile string
	)
	return &command{
		name:    "create",
		summary: "Create a user (administrators only)",
		usage:   "<username> --role <Administrator|Supervisor|User> [--password-file path]",
		flags: func() *pflag.FlagSet {
			fs := newFlagSet("create")
			fs.StringVar(&role, "role", string(model.RoleUser), "role of the new user")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file instead of prompting")
			return fs
		},
		run: func(ctx context.Context, args []string) error {
			if err := expectArgs(args, 1, "a username"); err != nil {
				return err
			}
			if err := a.authorize(authz.CanManageUsers, "creating users"); err != nil {
				return err
			}
			password, err := readPassword(passwordFile, a.prompt)
			if err != nil {
				return err
			}

			user, err := a.api.CreateUser(ctx, apiclient.CreateUserInput{
				Username: args[0],
				Password: password,
				Role:     model.Role(role),
			})
			if err != nil {
				return a.apiErr(ctx, err)
			}
			a.printf("Created user %s (id %d, %s).\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
}
