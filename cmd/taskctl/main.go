// Command taskctl is the command-line client for the taskweb API. It keeps
// the login session in a local file between invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"taskweb/internal/client"
	"taskweb/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	global := newFlagSet("taskctl")
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	configPath := global.String("config", defaultConfigPath(), "YAML config file")
	server := global.String("server", "", "API base URL (env "+envServer+")")
	sessionFile := global.String("session-file", "", "session file (env "+envSessionFile+")")
	logLevel := global.String("log-level", "", "debug, info, warn or error")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printGlobalHelp(stderr, global)
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := loadClientConfig(*configPath, getenv)
	if err != nil {
		return err
	}
	cfg.merge(clientConfig{Server: *server, SessionFile: *sessionFile, LogLevel: *logLevel})

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: log level: %v", errUsage, err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	a := newApp(cfg, stdout, stderr, logger)
	if err := a.session.LoadPersisted(ctx); err != nil {
		logger.Warn("ignoring stored session", slog.Any("error", err))
	}

	root := a.rootCommand()
	if global.NArg() == 0 {
		printGlobalHelp(stderr, global)
		root.printHelp(stderr)
		return fmt.Errorf("%w: a command is required", errUsage)
	}
	return root.execute(ctx, global.Args(), stderr)
}

func printGlobalHelp(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintf(w, "Global flags (before the command):\n%s\n", global.FlagUsages())
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, client.ErrSessionExpired), errors.Is(err, client.ErrNotAuthenticated):
		return "run 'taskctl login <username>' to start a session"
	case errors.Is(err, client.ErrInvalidTransition):
		return "allowed: pending -> in_progress|done, in_progress -> pending|done, done -> in_progress"
	default:
		return ""
	}
}
