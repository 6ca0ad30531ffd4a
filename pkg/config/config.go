// Package config holds every option a sync run accepts and turns them into
// the driver's options and a transport dialer.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tqbf/ftpsync/pkg/fingerprint"
	"github.com/tqbf/ftpsync/pkg/paths"
	"github.com/tqbf/ftpsync/pkg/remote"
	"github.com/tqbf/ftpsync/pkg/remote/fsremote"
	"github.com/tqbf/ftpsync/pkg/remote/ftpremote"
	"github.com/tqbf/ftpsync/pkg/remote/s3remote"
	"github.com/tqbf/ftpsync/pkg/syncer"
)

const (
	TransportFTP = "ftp"
	TransportDir = "dir"
	TransportS3  = "s3"
)

type S3 struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

type Config struct {
	Transport string

	Host        string
	User        string
	Password    string
	TLS         bool
	DisableEPSV bool
	Timeout     time.Duration

	S3 S3

	// RemoteDir is the FTP root, the target directory for the dir
	// transport, or the key prefix for s3.
	RemoteDir string
	LocalDir  string

	ManifestName string
	ScratchPath  string

	ExcludeFiles    []string
	ExcludeDirs     []string
	ExcludePatterns []string

	Fingerprint   string
	HashWorkers   int
	DeleteOrphans bool
	Strict        bool
}

func Default() Config {
	return Config{
		Transport:    TransportFTP,
		Timeout:      30 * time.Second,
		RemoteDir:    "./",
		LocalDir:     "./",
		ManifestName: ".file_hashes.json",
		ExcludeFiles: []string{"ftp_upload.py"},
		ExcludeDirs:  []string{".git", ".github"},
		Fingerprint:  "md5",
		HashWorkers:  1,
	}
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	add := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	switch c.Transport {
	case TransportFTP:
		if c.Host == "" {
			add("ftp host is required")
		}
		if c.User == "" {
			add("ftp user is required")
		}
		if c.Password == "" {
			add("ftp password is required")
		}
	case TransportDir:
		if strings.TrimSpace(c.RemoteDir) == "" {
			add("remote dir is required")
		}
	case TransportS3:
		if c.S3.Endpoint == "" {
			add("s3 endpoint is required")
		}
		if c.S3.Bucket == "" {
			add("s3 bucket is required")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			add("s3 access key and secret key are required")
		}
	default:
		add("unknown transport %q", c.Transport)
	}

	if c.ManifestName == "" ||
		strings.ContainsAny(c.ManifestName, `/\`) ||
		c.ManifestName == "." || c.ManifestName == ".." {
		add("manifest name %q must be a plain file name", c.ManifestName)
	}
	if _, err := fingerprint.ParseStrategy(c.Fingerprint); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.HashWorkers < 0 {
		add("hash workers must not be negative")
	}
	if c.Timeout < 0 {
		add("timeout must not be negative")
	}
	if _, err := c.Exclusions(); err != nil {
		errs = multierror.Append(errs, err)
	}

	info, err := os.Stat(c.LocalDir)
	switch {
	case err != nil:
		add("local dir: %w", err)
	case !info.IsDir():
		add("local dir %s is not a directory", c.LocalDir)
	}

	return errs.ErrorOrNil()
}

func (c *Config) Exclusions() (*paths.Exclusions, error) {
	excl := paths.NewExclusions(c.ExcludeFiles, c.ExcludeDirs)
	if err := excl.AddPatterns(c.ExcludePatterns...); err != nil {
		return nil, err
	}
	return excl, nil
}

// Scratch returns the scratch manifest path, deriving one under the
// temp directory that is unique to this local/remote pair when unset.
func (c *Config) Scratch() string {
	if c.ScratchPath != "" {
		return c.ScratchPath
	}
	local, err := filepath.Abs(c.LocalDir)
	if err != nil {
		local = c.LocalDir
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		c.Transport, c.Host, c.S3.Endpoint, c.S3.Bucket,
		c.RemoteDir, local,
	}, "\x00")))
	return filepath.Join(os.TempDir(), fmt.Sprintf(
		"ftpsync-%s-%s", hex.EncodeToString(sum[:6]), c.ManifestName,
	))
}

func (c *Config) SyncOptions() (syncer.Options, error) {
	strategy, err := fingerprint.ParseStrategy(c.Fingerprint)
	if err != nil {
		return syncer.Options{}, err
	}
	excl, err := c.Exclusions()
	if err != nil {
		return syncer.Options{}, err
	}
	return syncer.Options{
		LocalDir:      c.LocalDir,
		ManifestName:  c.ManifestName,
		ScratchPath:   c.Scratch(),
		Exclusions:    excl,
		Strategy:      strategy,
		HashWorkers:   c.HashWorkers,
		DeleteOrphans: c.DeleteOrphans,
		Strict:        c.Strict,
	}, nil
}

var errUnknownTransport = errors.New("unknown transport")

// Dialer returns a function that opens the configured transport.
func (c *Config) Dialer(log *slog.Logger) syncer.Dialer {
	cfg := *c
	return func(ctx context.Context) (remote.Transport, error) {
		switch cfg.Transport {
		case TransportFTP:
			tr, err := ftpremote.Dial(ctx, ftpremote.Config{
				Host:        cfg.Host,
				User:        cfg.User,
				Password:    cfg.Password,
				Root:        cfg.RemoteDir,
				Timeout:     cfg.Timeout,
				TLS:         cfg.TLS,
				DisableEPSV: cfg.DisableEPSV,
				Logger:      log,
			})
			if err != nil {
				return nil, err
			}
			return tr, nil
		case TransportDir:
			tr, err := fsremote.NewOS(cfg.RemoteDir)
			if err != nil {
				return nil, err
			}
			return tr, nil
		case TransportS3:
			tr, err := s3remote.Dial(ctx, s3remote.Config{
				Endpoint:  cfg.S3.Endpoint,
				Bucket:    cfg.S3.Bucket,
				Prefix:    cfg.RemoteDir,
				AccessKey: cfg.S3.AccessKey,
				SecretKey: cfg.S3.SecretKey,
				Region:    cfg.S3.Region,
				Secure:    cfg.S3.Secure,
				Logger:    log,
			})
			if err != nil {
				return nil, err
			}
			return tr, nil
		}
		return nil, fmt.Errorf("%w %q", errUnknownTransport, cfg.Transport)
	}
}

// LogValue keeps secrets out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("transport", c.Transport),
		slog.String("host", c.Host),
		slog.String("user", c.User),
		slog.String("remote_dir", c.RemoteDir),
		slog.String("local_dir", c.LocalDir),
		slog.String("manifest", c.ManifestName),
		slog.String("fingerprint", c.Fingerprint),
		slog.Bool("delete", c.DeleteOrphans),
		slog.Bool("strict", c.Strict),
		slog.Bool("tls", c.TLS),
	)
}
