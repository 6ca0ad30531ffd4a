package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/tqbf/ftpsync/pkg/plan"
	"github.com/tqbf/ftpsync/pkg/syncer"
)

func pushCmd() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "upload new and changed files, then record the manifest",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "show what would happen",
			},
		},
		Action: pushAction,
	}
}

func pushAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	opts, err := cfg.SyncOptions()
	if err != nil {
		return err
	}
	dryRun := c.Bool("dry-run")
	opts.DryRun = dryRun

	ctx, stop := signalContext()
	defer stop()

	log := slog.Default()
	rep, err := syncer.New(opts, cfg.Dialer(log), log).Run(ctx)
	if err != nil {
		return err
	}

	if rep.Plan.Empty() {
		fmt.Println("Already in sync.")
		return nil
	}

	tag := ""
	if rep.FirstRun {
		tag = " (first run)"
	}
	verb := "Pushed to"
	if dryRun {
		verb = "Would push to"
	}
	fmt.Printf("%s %s%s\n", verb, describeTarget(cfg), tag)
	printChanges(os.Stdout, rep)
	printSummary(os.Stdout, rep, dryRun)
	return nil
}

func printChanges(w io.Writer, rep *syncer.Report) {
	var b strings.Builder
	for _, a := range rep.Plan.Uploads {
		prefix := "+"
		if a.Reason == plan.ReasonModified {
			prefix = "~"
		}
		fmt.Fprintf(&b,
			"  %s %s (%s)\n",
			prefix, a.Path,
			humanize.Bytes(uint64(rep.Local.Files[a.Path].Size)),
		)
	}
	for _, p := range rep.Plan.Deletes {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	fmt.Fprint(w, b.String())
}

func printSummary(w io.Writer, rep *syncer.Report, dryRun bool) {
	uploads := rep.Plan.UploadPaths()
	size := rep.Local.TotalSize(uploads)

	var b strings.Builder
	if dryRun {
		fmt.Fprintf(&b,
			"%d to transfer (%s)",
			len(uploads), humanize.Bytes(uint64(size)),
		)
		if len(rep.Plan.Deletes) > 0 {
			fmt.Fprintf(&b, ", %d to delete", len(rep.Plan.Deletes))
		}
		fmt.Fprintln(&b)
		fmt.Fprint(w, b.String())
		return
	}

	fmt.Fprintf(&b,
		"Transferred %d files (%s) in %s\n",
		len(rep.Uploaded),
		humanize.Bytes(uint64(rep.UploadedBytes)),
		rep.Elapsed.Round(1e6),
	)
	if len(rep.Deleted) > 0 {
		fmt.Fprintf(&b, "Deleted %d files\n", len(rep.Deleted))
	}
	if len(rep.Retained) > 0 {
		fmt.Fprintf(&b,
			"%d deletes failed and will be retried: %s\n",
			len(rep.Retained), strings.Join(rep.Retained, ", "),
		)
	}
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(&b,
			"%d unreadable files skipped: %s\n",
			len(rep.Skipped), strings.Join(rep.Skipped, ", "),
		)
	}
	fmt.Fprint(w, b.String())
}
