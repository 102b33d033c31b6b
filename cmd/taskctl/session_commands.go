package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"taskweb/internal/client"
	"taskweb/internal/common/security"
)

func (a *app) loginCommand() *command {
	var passwordFile string
	return &command{
		name:    "login",
		summary: "Log in and store the session",
		usage:   "<username> [--password-file path]",
		flags: func() *pflag.FlagSet {
			fs := newFlagSet("login")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file instead of prompting")
			return fs
		},
		run: func(ctx context.Context, args []string) error {
			if err := expectArgs(args, 1, "a username"); err != nil {
				return err
			}
			password, err := readPassword(passwordFile, a.prompt)
			if err != nil {
				return err
			}

			user, err := a.session.Login(ctx, args[0], password)
			if err != nil {
				return err
			}
			a.printf("Logged in as %s (%s).\n", user.Username, user.EffectiveRole())
			return nil
		},
	}
}

func (a *app) logoutCommand() *command {
	return &command{
		name:    "logout",
		summary: "Revoke the session token and forget the session",
		run: func(ctx context.Context, args []string) error {
			if a.session.Token() == "" {
				a.printf("Not logged in.\n")
				return nil
			}
			// The local session is cleared even if the server cannot be reached.
			if err := a.api.Logout(ctx); err != nil && !errors.Is(err, client.ErrSessionExpired) {
				a.logger.Warn("server logout failed", slog.Any("error", err))
			}
			if err := a.session.Clear(ctx); err != nil {
				return err
			}
			a.printf("Logged out.\n")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *command {
	return &command{
		name:    "whoami",
		summary: "Show the logged-in user and what they may do",
		run: func(ctx context.Context, args []string) error {
			if _, err := a.currentUser(); err != nil {
				return err
			}
			me, err := a.api.Me(ctx)
			if err != nil {
				return a.apiErr(ctx, err)
			}

			a.printf("%s (id %d, %s)\n", me.User.Username, me.User.ID, me.User.EffectiveRole())
			for _, name := range []string{"createTasks", "deleteTasks", "assignTasks", "seeAllTasks", "manageUsers"} {
				a.printf("  %-12s %t\n", name, me.Permissions[name])
			}
			return nil
		},
	}
}

func (a *app) hashPasswordCommand() *command {
	var (
		cost         int
		passwordFile string
	)
	return &command{
		name:    "hash-password",
		summary: "Print a bcrypt hash for seeding users by hand",
		flags: func() *pflag.FlagSet {
			fs := newFlagSet("hash-password")
			fs.IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file instead of prompting")
			return fs
		},
		run: func(ctx context.Context, args []string) error {
			if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
				return fmt.Errorf("%w: cost must be between %d and %d", errUsage, bcrypt.MinCost, bcrypt.MaxCost)
			}
			password, err := readPassword(passwordFile, a.prompt)
			if err != nil {
				return err
			}
			hash, err := security.HashPasswordWithCost(password, cost)
			if err != nil {
				return err
			}
			a.printf("%s\n", hash)
			return nil
		},
	}
}
