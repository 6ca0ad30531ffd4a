package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/tqbf/ftpsync/pkg/remote"
)

func lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list a directory on the remote",
		ArgsUsage: "[dir]",
		Action:    lsAction,
	}
}

func lsAction(c *cli.Context) error {
	if c.NArg() > 1 {
		return fmt.Errorf("usage: ftpsync ls [dir]")
	}
	dir := c.Args().First()
	if dir == "" {
		dir = "."
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	tr, err := cfg.Dialer(slog.Default())(ctx)
	if err != nil {
		return err
	}
	defer tr.Close()

	entries, err := tr.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	printEntries(os.Stdout, entries)
	return nil
}

func printEntries(w io.Writer, entries []remote.Entry) {
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(w, "  %8s  %s/\n", "dir", e.Name)
			continue
		}
		modified := ""
		if !e.ModTime.IsZero() {
			modified = humanize.Time(e.ModTime)
		}
		fmt.Fprintf(w, "  %8s  %s  %s\n",
			humanize.Bytes(uint64(e.Size)), e.Name, modified,
		)
	}
}
