package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tqbf/ftpsync/pkg/config"
	"github.com/tqbf/ftpsync/pkg/logging"
	"github.com/tqbf/ftpsync/pkg/plan"
	"github.com/tqbf/ftpsync/pkg/syncer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

type step struct {
	title  string
	mutate func(dir string) error
	tweak  func(cfg *config.Config)
}

func run() error {
	log, closeLog := logging.New(os.Stderr, logging.Options{})
	defer closeLog()

	localDir, err := os.MkdirTemp("", "ftpsync-local-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(localDir)

	remoteDir, err := os.MkdirTemp("", "ftpsync-remote-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(remoteDir)

	scratchDir, err := os.MkdirTemp("", "ftpsync-scratch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratchDir)

	fmt.Println("=== Building directory tree ===")
	fmt.Printf("Local:  %s\n", localDir)
	fmt.Printf("Remote: %s\n\n", remoteDir)
	if err := writeFiles(localDir, siteTree()); err != nil {
		return err
	}

	steps := []step{
		{title: "First push (empty remote)"},
		{title: "Second push (should be a no-op)"},
		{
			title:  "Edit one page, add a stylesheet",
			mutate: func(dir string) error {
				return writeFiles(dir, map[string]string{
					"index.html":    page("Home", "Now with news."),
					"css/print.css": "body { color: black; }\n",
				})
			},
		},
		{
			title:  "Remove a page (orphans kept)",
			mutate: func(dir string) error {
				return os.Remove(filepath.Join(dir, "about.html"))
			},
		},
		{
			title: "Push again with --delete",
			tweak: func(cfg *config.Config) { cfg.DeleteOrphans = true },
		},
		{
			title: "Exclude the images directory",
			tweak: func(cfg *config.Config) {
				cfg.DeleteOrphans = true
				cfg.ExcludeDirs = append(cfg.ExcludeDirs, "img")
			},
		},
		{
			title: "Switch to mtime fingerprints",
			tweak: func(cfg *config.Config) {
				cfg.Fingerprint = "mtime"
			},
		},
	}

	for i, s := range steps {
		fmt.Printf("=== Step %d: %s ===\n", i+1, s.title)
		if s.mutate != nil {
			if err := s.mutate(localDir); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}

		cfg := config.Default()
		cfg.Transport = config.TransportDir
		cfg.LocalDir = localDir
		cfg.RemoteDir = remoteDir
		cfg.ScratchPath = filepath.Join(scratchDir, cfg.ManifestName)
		if s.tweak != nil {
			s.tweak(&cfg)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		rep, err := push(cfg, log)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		printReport(rep)
	}

	fmt.Println("=== Remote tree ===")
	if err := printTree(remoteDir); err != nil {
		return err
	}
	fmt.Println("\nDone.")
	return nil
}

func push(cfg config.Config, log *slog.Logger) (*syncer.Report, error) {
	opts, err := cfg.SyncOptions()
	if err != nil {
		return nil, err
	}
	var states []string
	opts.OnState = func(s syncer.State) {
		states = append(states, s.String())
	}
	rep, err := syncer.New(opts, cfg.Dialer(log), log).Run(
		context.Background(),
	)
	if err != nil {
		return nil, err
	}
	fmt.Printf("  states: %s\n", strings.Join(states, " -> "))
	return rep, nil
}

func printReport(rep *syncer.Report) {
	fmt.Printf(
		"  first_run=%t files=%d size=%s\n",
		rep.FirstRun, rep.Files, humanize.Bytes(uint64(rep.TotalBytes)),
	)
	if rep.Plan.Empty() {
		fmt.Println("  Already in sync.")
	}
	for _, a := range rep.Plan.Uploads {
		prefix := "+"
		if a.Reason == plan.ReasonModified {
			prefix = "~"
		}
		fmt.Printf("  %s %s (%s)\n", prefix, a.Path, a.Reason)
	}
	for _, p := range rep.Plan.Deletes {
		fmt.Printf("  - %s\n", p)
	}
	for _, p := range rep.Excluded {
		fmt.Printf("  ! %s (excluded, left on remote)\n", p)
	}
	fmt.Printf(
		"  uploaded=%d (%s) deleted=%d retained=%d manifest=%d\n\n",
		len(rep.Uploaded),
		humanize.Bytes(uint64(rep.UploadedBytes)),
		len(rep.Deleted),
		len(rep.Retained),
		len(rep.Manifest),
	)
}

func printTree(root string) error {
	return filepath.WalkDir(
		root, func(p string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			fmt.Printf(
				"  %-28s %s\n",
				filepath.ToSlash(rel),
				humanize.Bytes(uint64(info.Size())),
			)
			return nil
		},
	)
}

func siteTree() map[string]string {
	return map[string]string{
		"index.html":            page("Home", "Welcome."),
		"about.html":            page("About", "Who we are."),
		"blog/2024/intro.html":  page("Intro", "First post."),
		"blog/2024/second.html": page("Second", "Another post."),
		"css/site.css":          "body { font-family: sans-serif; }\n",
		"js/app.js":             "console.log('ready');\n",
		"img/logo.svg":          "<svg xmlns=\"http://www.w3.org/2000/svg\"/>\n",
		"img/banner.svg":        "<svg xmlns=\"http://www.w3.org/2000/svg\"></svg>\n",
		".git/HEAD":             "ref: refs/heads/main\n",
		"ftp_upload.py":         "# deploy script\n",
	}
}

func page(title, body string) string {
	return fmt.Sprintf(
		"<!doctype html>\n<title>%s</title>\n<p>%s</p>\n",
		title, body,
	)
}

func writeFiles(root string, files map[string]string) error {
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}
