package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/tqbf/ftpsync/pkg/manifest"
)

type Strategy int

const (
	StrategyMD5 Strategy = iota
	StrategySHA256
	StrategyModTime
)

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md5", "hash":
		return StrategyMD5, nil
	case "sha256":
		return StrategySHA256, nil
	case "mtime", "modtime", "timestamp":
		return StrategyModTime, nil
	}
	return 0, fmt.Errorf("unknown fingerprint strategy %q", s)
}

func (s Strategy) String() string {
	switch s {
	case StrategySHA256:
		return "sha256"
	case StrategyModTime:
		return "mtime"
	default:
		return "md5"
	}
}

// Kind is the manifest kind this strategy produces.
func (s Strategy) Kind() manifest.Kind {
	if s == StrategyModTime {
		return manifest.KindModTime
	}
	return manifest.KindDigest
}

func (s Strategy) newHash() hash.Hash {
	if s == StrategySHA256 {
		return sha256.New()
	}
	return md5.New()
}

const bufSize = 64 << 10

// Of fingerprints the file at absPath. buf may be nil.
func Of(
	absPath string,
	s Strategy,
	buf []byte,
) (manifest.Fingerprint, int64, error) {
	if s == StrategyModTime {
		info, err := os.Stat(absPath)
		if err != nil {
			return manifest.Fingerprint{}, 0, err
		}
		return manifest.ModTimeFingerprint(info.ModTime()),
			info.Size(), nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return manifest.Fingerprint{}, 0, err
	}
	defer f.Close()

	if buf == nil {
		buf = make([]byte, bufSize)
	}
	h := s.newHash()
	n, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return manifest.Fingerprint{}, 0, err
	}
	return manifest.DigestFingerprint(
		hex.EncodeToString(h.Sum(nil)),
	), n, nil
}
