package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/tqbf/ftpsync/pkg/syncer"
)

func planCmd() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "show what push would do",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "JSON output",
			},
		},
		Action: planAction,
	}
}

type planJSON struct {
	Target    string         `json:"target"`
	FirstRun  bool           `json:"first_run"`
	Transfers []planTransfer `json:"transfers"`
	Deletes   []string       `json:"deletes"`
	Excluded  []string       `json:"excluded,omitempty"`
	Skipped   []string       `json:"skipped,omitempty"`
	Summary   planSummary    `json:"summary"`
}

type planTransfer struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Reason string `json:"reason"`
}

type planSummary struct {
	TransferCount int   `json:"transfer_count"`
	TransferBytes int64 `json:"transfer_bytes"`
	DeleteCount   int   `json:"delete_count"`
	LocalFiles    int   `json:"local_files"`
}

func planAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	opts, err := cfg.SyncOptions()
	if err != nil {
		return err
	}
	opts.DryRun = true

	ctx, stop := signalContext()
	defer stop()

	log := slog.Default()
	rep, err := syncer.New(opts, cfg.Dialer(log), log).Run(ctx)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writePlanJSON(os.Stdout, describeTarget(cfg), rep)
	}
	if rep.Plan.Empty() {
		fmt.Println("Already in sync.")
		return nil
	}
	printChanges(os.Stdout, rep)
	printSummary(os.Stdout, rep, true)
	return nil
}

func writePlanJSON(
	w io.Writer, target string, rep *syncer.Report,
) error {
	out := planJSON{
		Target:    target,
		FirstRun:  rep.FirstRun,
		Transfers: []planTransfer{},
		Deletes:   rep.Plan.Deletes,
		Excluded:  rep.Excluded,
		Skipped:   rep.Skipped,
	}
	if out.Deletes == nil {
		out.Deletes = []string{}
	}
	for _, a := range rep.Plan.Uploads {
		size := rep.Local.Files[a.Path].Size
		out.Transfers = append(out.Transfers, planTransfer{
			Path:   a.Path,
			Size:   size,
			Reason: string(a.Reason),
		})
		out.Summary.TransferBytes += size
	}
	out.Summary.TransferCount = len(out.Transfers)
	out.Summary.DeleteCount = len(out.Deletes)
	out.Summary.LocalFiles = rep.Files

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
