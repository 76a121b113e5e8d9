// Package cli is a small command tree built on pflag.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// PositionalArgs validates the arguments left after flag parsing.
type PositionalArgs func(cmd *Command, args []string) error

type Command struct {
	// Usage is the one-line usage message. The first word is the
	// command name.
	Usage string
	Short string
	Long  string
	Args  PositionalArgs
	Run   func(ctx context.Context, args []string)

	// Output receives help text. Nil means stderr.
	Output io.Writer

	parent   *Command
	commands []*Command
	flags    *pflag.FlagSet
}

func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// Flags returns the command's flag set, creating it on first use.
func (c *Command) Flags() *pflag.FlagSet {
	if c.flags == nil {
		c.flags = pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
		c.flags.SetOutput(io.Discard)
	}
	return c.flags
}

func (c *Command) AddCommand(sub *Command) {
	sub.parent = c
	c.commands = append(c.commands, sub)
}

func (c *Command) find(name string) *Command {
	for _, sub := range c.commands {
		if sub.Name() == name {
			return sub
		}
	}
	return nil
}

func (c *Command) output() io.Writer {
	for cmd := c; cmd != nil; cmd = cmd.parent {
		if cmd.Output != nil {
			return cmd.Output
		}
	}
	return os.Stderr
}

func (c *Command) path() string {
	if c.parent == nil {
		return c.Name()
	}
	return c.parent.path() + " " + c.Name()
}

// PrintHelp writes the usage, description, flags and subcommands of c.
func (c *Command) PrintHelp() {
	w := c.output()
	usage := c.Usage
	if c.parent != nil {
		usage = c.parent.path() + " " + usage
	}
	fmt.Fprintf(w, "Usage: %s\n", usage)
	if c.Long != "" {
		fmt.Fprintf(w, "\n%s\n", c.Long)
	} else if c.Short != "" {
		fmt.Fprintf(w, "\n%s\n", c.Short)
	}
	if len(c.commands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		subs := append([]*Command(nil), c.commands...)
		sort.Slice(subs, func(i, j int) bool { return subs[i].Name() < subs[j].Name() })
		for _, sub := range subs {
			fmt.Fprintf(w, "  %-12s %s\n", sub.Name(), sub.Short)
		}
	}
	if c.flags != nil && c.flags.HasFlags() {
		fmt.Fprintf(w, "\nFlags:\n%s", c.flags.FlagUsages())
	}
}

// Execute finds the command named by args under root, parses its flags
// and runs it. Commands without Run print their help.
func Execute(ctx context.Context, root *Command, args []string) error {
	cmd := root
	for len(args) > 0 {
		sub := cmd.find(args[0])
		if sub == nil {
			break
		}
		cmd, args = sub, args[1:]
	}

	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			cmd.PrintHelp()
			return nil
		}
		cmd.PrintHelp()
		return err
	}
	args = cmd.Flags().Args()

	if cmd.Run == nil {
		cmd.PrintHelp()
		if len(args) > 0 {
			return fmt.Errorf("unknown command %q for %q", args[0], cmd.path())
		}
		return nil
	}
	if cmd.Args != nil {
		if err := cmd.Args(cmd, args); err != nil {
			cmd.PrintHelp()
			return err
		}
	}
	cmd.Run(ctx, args)
	return nil
}

func MinArgs(n int) PositionalArgs {
	return func(cmd *Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("%s: requires at least %d arg(s), only received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func MaxArgs(n int) PositionalArgs {
	return func(cmd *Command, args []string) error {
		if len(args) > n {
			return fmt.Errorf("%s: accepts at most %d arg(s), received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func ExactArgs(n int) PositionalArgs {
	return func(cmd *Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%s: accepts %d arg(s), received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}
