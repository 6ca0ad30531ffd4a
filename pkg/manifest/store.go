package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tqbf/ftpsync/pkg/remote"
)

// Store moves the manifest between the remote root and a local scratch
// file. Name is the manifest's path relative to the transport root.
type Store struct {
	Transport   remote.Transport
	Name        string
	ScratchPath string
	Logger      *slog.Logger
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Load fetches the remote manifest. A missing manifest, or one that
// cannot be parsed, reports firstRun with an empty manifest.
func (s *Store) Load(
	ctx context.Context,
) (m Manifest, firstRun bool, err error) {
	log := s.logger()

	rc, err := s.Transport.Download(ctx, s.Name)
	if err != nil {
		if remote.IsNotFound(err) {
			log.Info("no manifest on remote, treating as first run",
				"manifest", s.Name,
			)
			return Manifest{}, true, nil
		}
		return nil, false, fmt.Errorf("fetch manifest: %w", err)
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, false, fmt.Errorf("read manifest: %w", err)
	}
	if closeErr != nil {
		return nil, false, fmt.Errorf("read manifest: %w", closeErr)
	}

	if err := s.writeScratch(data); err != nil {
		return nil, false, err
	}

	m, err = Decode(bytes.NewReader(data))
	if err != nil {
		log.Warn("remote manifest unreadable, treating as first run",
			"manifest", s.Name,
			"err", err,
		)
		return Manifest{}, true, nil
	}
	log.Info("loaded manifest",
		"manifest", s.Name,
		"entries", len(m),
	)
	return m, false, nil
}

// Save writes m to the scratch file and then to the remote root.
func (s *Store) Save(ctx context.Context, m Manifest) error {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := s.writeScratch(buf.Bytes()); err != nil {
		return err
	}
	err := s.Transport.Upload(
		ctx, bytes.NewReader(buf.Bytes()), s.Name,
	)
	if err != nil {
		return fmt.Errorf("upload manifest: %w", err)
	}
	s.logger().Info("saved manifest",
		"manifest", s.Name,
		"entries", len(m),
	)
	return nil
}

// Lock takes an exclusive lock beside the scratch file so that two runs
// sharing it cannot interleave.
func (s *Store) Lock() (unlock func(), err error) {
	if s.ScratchPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(
		filepath.Dir(s.ScratchPath), 0755,
	); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	fl := flock.New(s.ScratchPath + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf(
			"another sync holds %s", fl.Path(),
		)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger().Warn("unlock scratch manifest",
				"path", fl.Path(),
				"err", err,
			)
		}
	}, nil
}

func (s *Store) writeScratch(data []byte) error {
	if s.ScratchPath == "" {
		return nil
	}
	dir := filepath.Dir(s.ScratchPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	tmp, err := os.CreateTemp(
		dir, filepath.Base(s.ScratchPath)+".tmp*",
	)
	if err != nil {
		return fmt.Errorf("write scratch manifest: %w", err)
	}
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write scratch manifest: %w", writeErr)
	}
	if err := os.Rename(tmp.Name(), s.ScratchPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write scratch manifest: %w", err)
	}
	return nil
}
