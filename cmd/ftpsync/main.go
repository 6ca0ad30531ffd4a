package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/tqbf/ftpsync/pkg/config"
	"github.com/tqbf/ftpsync/pkg/logging"
)

const appVersion = "0.1.0"

var closeLog = func() error { return nil }

func main() {
	app := &cli.App{
		Name:   "ftpsync",
		Usage:  "incrementally sync a directory to an FTP server",
		Flags:  globalFlags(),
		Before: before,
		After: func(c *cli.Context) error {
			return closeLog()
		},
		Commands: []*cli.Command{
			pushCmd(),
			planCmd(),
			lsCmd(),
			doctorCmd(),
			{
				Name:  "version",
				Usage: "print version",
				Action: func(c *cli.Context) error {
					fmt.Println(appVersion)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	var log *slog.Logger
	log, closeLog = logging.New(os.Stderr, logging.Options{
		Verbose: c.Bool("verbose"),
		File:    c.String("log-file"),
	})
	slog.SetDefault(log)
	return applyEnvFile(c)
}

// applyEnvFile loads --env-file and fills every flag that was not given on
// the command line from the variables it defines.
func applyEnvFile(c *cli.Context) error {
	file := c.String("env-file")
	if file == "" {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	for _, f := range c.App.Flags {
		ef, ok := f.(interface{ GetEnvVars() []string })
		if !ok {
			continue
		}
		name := f.Names()[0]
		if c.IsSet(name) {
			continue
		}
		for _, env := range ef.GetEnvVars() {
			v, ok := os.LookupEnv(env)
			if !ok {
				continue
			}
			if err := c.Set(name, v); err != nil {
				return fmt.Errorf("%s from %s: %w", name, env, err)
			}
			break
		}
	}
	slog.Debug("loaded env file", "path", file)
	return nil
}

func globalFlags() []cli.Flag {
	def := config.Default()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "transport",
			EnvVars: []string{"SYNC_TRANSPORT"},
			Value:   def.Transport,
			Usage:   "remote store: ftp, dir or s3",
		},
		&cli.StringFlag{
			Name:    "host",
			EnvVars: []string{"FTP_HOST"},
			Usage:   "FTP server host[:port]",
		},
		&cli.StringFlag{
			Name:    "user",
			EnvVars: []string{"FTP_USERNAME"},
			Usage:   "FTP user",
		},
		&cli.StringFlag{
			Name:    "password",
			EnvVars: []string{"FTP_PASSWORD"},
			Usage:   "FTP password",
		},
		&cli.BoolFlag{
			Name:    "tls",
			EnvVars: []string{"FTP_TLS"},
			Usage:   "use explicit FTPS",
		},
		&cli.BoolFlag{
			Name:    "disable-epsv",
			EnvVars: []string{"FTP_DISABLE_EPSV"},
			Usage:   "use PASV instead of EPSV",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			EnvVars: []string{"FTP_TIMEOUT"},
			Value:   def.Timeout,
			Usage:   "connection timeout",
		},
		&cli.StringFlag{
			Name:    "remote-dir",
			EnvVars: []string{"FTP_DIR"},
			Value:   def.RemoteDir,
			Usage:   "remote root (FTP dir, mirror dir or S3 prefix)",
		},
		&cli.StringFlag{
			Name:    "local-dir",
			EnvVars: []string{"LOCAL_DIR"},
			Value:   def.LocalDir,
			Usage:   "local directory to sync",
		},
		&cli.StringFlag{
			Name:    "manifest",
			EnvVars: []string{"HASH_FILE"},
			Value:   def.ManifestName,
			Usage:   "manifest file name at the remote root",
		},
		&cli.StringFlag{
			Name:    "scratch",
			EnvVars: []string{"SCRATCH_FILE"},
			Usage:   "local copy of the manifest (default: temp dir)",
		},
		&cli.StringSliceFlag{
			Name:    "exclude-file",
			EnvVars: []string{"EXCLUDE_FILES"},
			Value:   cli.NewStringSlice(def.ExcludeFiles...),
			Usage:   "file name to skip at any depth (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:    "exclude-dir",
			EnvVars: []string{"EXCLUDE_DIRS"},
			Value:   cli.NewStringSlice(def.ExcludeDirs...),
			Usage:   "directory name to skip at any depth (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:    "exclude",
			EnvVars: []string{"EXCLUDE_PATTERNS"},
			Usage:   "glob over relative paths, ** allowed (repeatable)",
		},
		&cli.StringFlag{
			Name:    "fingerprint",
			EnvVars: []string{"FINGERPRINT"},
			Value:   def.Fingerprint,
			Usage:   "md5, sha256 or mtime",
		},
		&cli.IntFlag{
			Name:    "hash-workers",
			EnvVars: []string{"HASH_WORKERS"},
			Value:   def.HashWorkers,
			Usage:   "files hashed concurrently",
		},
		&cli.BoolFlag{
			Name:    "delete",
			EnvVars: []string{"DELETE_ORPHANS"},
			Usage:   "delete remote files that no longer exist locally",
		},
		&cli.BoolFlag{
			Name:    "strict",
			EnvVars: []string{"STRICT"},
			Usage:   "abort on unreadable local files",
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			EnvVars: []string{"S3_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			EnvVars: []string{"S3_BUCKET"},
		},
		&cli.StringFlag{
			Name:    "s3-access-key",
			EnvVars: []string{"S3_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "s3-secret-key",
			EnvVars: []string{"S3_SECRET_KEY"},
		},
		&cli.StringFlag{
			Name:    "s3-region",
			EnvVars: []string{"S3_REGION"},
		},
		&cli.BoolFlag{
			Name:    "s3-ssl",
			EnvVars: []string{"S3_SSL"},
			Value:   true,
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "load variables from a dotenv file",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "also write logs to this file (rotated)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "verbose output",
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	cfg.Transport = c.String("transport")
	cfg.Host = c.String("host")
	cfg.User = c.String("user")
	cfg.Password = c.String("password")
	cfg.TLS = c.Bool("tls")
	cfg.DisableEPSV = c.Bool("disable-epsv")
	cfg.Timeout = c.Duration("timeout")
	cfg.RemoteDir = c.String("remote-dir")
	cfg.LocalDir = c.String("local-dir")
	cfg.ManifestName = c.String("manifest")
	cfg.ScratchPath = c.String("scratch")
	cfg.ExcludeFiles = c.StringSlice("exclude-file")
	cfg.ExcludeDirs = c.StringSlice("exclude-dir")
	cfg.ExcludePatterns = c.StringSlice("exclude")
	cfg.Fingerprint = c.String("fingerprint")
	cfg.HashWorkers = c.Int("hash-workers")
	cfg.DeleteOrphans = c.Bool("delete")
	cfg.Strict = c.Bool("strict")
	cfg.S3 = config.S3{
		Endpoint:  c.String("s3-endpoint"),
		Bucket:    c.String("s3-bucket"),
		AccessKey: c.String("s3-access-key"),
		SecretKey: c.String("s3-secret-key"),
		Region:    c.String("s3-region"),
		Secure:    c.Bool("s3-ssl"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	slog.Debug("configuration", "config", cfg)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
}

func describeTarget(cfg config.Config) string {
	switch cfg.Transport {
	case config.TransportDir:
		return cfg.RemoteDir
	case config.TransportS3:
		return fmt.Sprintf("s3://%s/%s", cfg.S3.Bucket, cfg.RemoteDir)
	}
	return fmt.Sprintf("ftp://%s@%s/%s", cfg.User, cfg.Host, cfg.RemoteDir)
}
