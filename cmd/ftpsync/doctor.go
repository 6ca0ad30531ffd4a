package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/ftpsync/pkg/manifest"
	"github.com/tqbf/ftpsync/pkg/remote"
)

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "verify connectivity and the remote manifest",
		Action: doctorAction,
	}
}

func doctorAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("Target: %s\n", describeTarget(cfg))

	t := time.Now()
	tr, err := cfg.Dialer(slog.Default())(ctx)
	if err != nil {
		fmt.Printf("  Connect: FAIL (%v)\n", err)
		return fmt.Errorf("connect check failed")
	}
	defer tr.Close()
	fmt.Printf(
		"  Connect: ok (%dms)\n", time.Since(t).Milliseconds(),
	)

	entries, err := tr.List(ctx, ".")
	if err != nil {
		fmt.Printf("  List: FAIL (%v)\n", err)
		return fmt.Errorf("list check failed")
	}
	fmt.Printf("  List: ok (%d entries at root)\n", len(entries))

	rc, err := tr.Download(ctx, cfg.ManifestName)
	switch {
	case remote.IsNotFound(err):
		fmt.Printf("  Manifest: none (next push is a first run)\n")
		return nil
	case err != nil:
		fmt.Printf("  Manifest: FAIL (%v)\n", err)
		return fmt.Errorf("manifest check failed")
	}
	defer rc.Close()

	m, err := manifest.Decode(rc)
	if err != nil {
		fmt.Printf(
			"  Manifest: unreadable (%v), next push re-uploads everything\n",
			err,
		)
		return nil
	}
	kind, _ := m.Kind()
	fmt.Printf(
		"  Manifest: ok (%d entries, %s fingerprints)\n", len(m), kind,
	)
	return nil
}
