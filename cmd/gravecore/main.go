// Command gravecore runs the cemetery administration service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"gravecore/internal/server"
)

const defaultConfigPath = "configs/config.toml"

// command is one gravecore subcommand.
type command struct {
	Usage string
	Short string
	Flags *flag.FlagSet
	Exec  func(ctx context.Context, out io.Writer, args []string) error
}

func (c *command) name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

func main() {
	os.Exit(run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]))
}

func commands() []*command {
	serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
	serveConfig := serveFlags.StringP("config", "c", defaultConfigPath, "path to config file")

	backupFlags := flag.NewFlagSet("backup", flag.ContinueOnError)
	backupConfig := backupFlags.StringP("config", "c", defaultConfigPath, "path to config file")
	backupList := backupFlags.Bool("list", false, "list existing snapshots instead of writing one")

	return []*command{
		{
			Usage: "serve [--config path]",
			Short: "Run the HTTP API",
			Flags: serveFlags,
			Exec: func(_ context.Context, _ io.Writer, _ []string) error {
				srv, err := open(*serveConfig)
				if err != nil {
					return err
				}
				defer func() { _ = srv.Shutdown() }()
				return srv.Start()
			},
		},
		{
			Usage: "backup [--config path] [--list]",
			Short: "Write a store snapshot to the blob store",
			Flags: backupFlags,
			Exec: func(ctx context.Context, out io.Writer, _ []string) error {
				srv, err := open(*backupConfig)
				if err != nil {
					return err
				}
				defer func() { _ = srv.Shutdown() }()
				if *backupList {
					infos, err := srv.ListBackups(ctx)
					if err != nil {
						return err
					}
					for _, info := range infos {
						fmt.Fprintf(out, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.UTC().Format("2006-01-02T15:04:05Z"))
					}
					return nil
				}
				info, err := srv.Backup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, info.Key)
				return nil
			},
		},
	}
}

func open(path string) (*server.Server, error) {
	conf, err := server.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return server.NewServer(conf)
}

// run dispatches args to a subcommand and returns the exit code.
func run(ctx context.Context, out, errOut io.Writer, args []string) int {
	cmds := commands()
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(out, cmds)
		return 0
	}

	for _, cmd := range cmds {
		if cmd.name() != args[0] {
			continue
		}
		cmd.Flags.SetOutput(io.Discard)
		if err := cmd.Flags.Parse(args[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				printCommandHelp(out, cmd)
				return 0
			}
			fmt.Fprintln(errOut, "error:", err)
			printCommandHelp(errOut, cmd)
			return 1
		}
		if err := cmd.Exec(ctx, out, cmd.Flags.Args()); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(errOut, "error: unknown command %q\n", args[0])
	printUsage(errOut, cmds)
	return 1
}

func printUsage(w io.Writer, cmds []*command) {
	fmt.Fprintln(w, "Usage: gravecore <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range cmds {
		fmt.Fprintf(w, "  %-34s %s\n", cmd.Usage, cmd.Short)
	}
}

func printCommandHelp(w io.Writer, cmd *command) {
	fmt.Fprintln(w, "Usage: gravecore", cmd.Usage)
	fmt.Fprintln(w)
	fmt.Fprintln(w, cmd.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	var buf strings.Builder
	cmd.Flags.SetOutput(&buf)
	cmd.Flags.PrintDefaults()
	fmt.Fprint(w, buf.String())
}
