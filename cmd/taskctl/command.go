package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// errUsage marks errors caused by how the command was invoked.
var errUsage = errors.New("usage error")

// command is a node in the taskctl command tree.
type command struct {
	name    string
	summary string
	usage   string

	// flags returns a fresh flag set bound to the command's variables.
	flags func() *pflag.FlagSet

	subcommands []*command

	// run is used when no subcommand matches.
	run func(ctx context.Context, args []string) error

	parent *command
}

func (c *command) execute(ctx context.Context, args []string, help io.Writer) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.printHelp(help)
		return nil
	}

	if len(c.subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		for _, sub := range c.subcommands {
			if sub.name == args[0] {
				sub.parent = c
				return sub.execute(ctx, args[1:], help)
			}
		}
		if c.run == nil {
			return fmt.Errorf("%w: unknown command %q, run '%s --help'", errUsage, args[0], c.fullName())
		}
	}

	if c.run == nil {
		c.printHelp(help)
		return fmt.Errorf("%w: %s needs a subcommand", errUsage, c.fullName())
	}

	if c.flags != nil {
		fs := c.flags()
		fs.SetOutput(io.Discard)
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				c.printHelp(help)
				return nil
			}
			return fmt.Errorf("%w: %v, run '%s --help'", errUsage, err, c.fullName())
		}
		args = fs.Args()
	}

	return c.run(ctx, args)
}

func (c *command) printHelp(w io.Writer) {
	if c.summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.summary)
	}

	switch {
	case c.usage != "":
		fmt.Fprintf(w, "Usage:\n  %s %s\n", c.fullName(), c.usage)
	case len(c.subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", c.fullName())
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", c.fullName())
	}

	if len(c.subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.name, sub.summary)
		}
		tw.Flush()
	}

	if c.flags != nil {
		var b strings.Builder
		fs := c.flags()
		fs.SetOutput(&b)
		fs.PrintDefaults()
		if b.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", b.String())
		}
	}
}

func (c *command) fullName() string {
	if c.parent == nil {
		return c.name
	}
	return c.parent.fullName() + " " + c.name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}
