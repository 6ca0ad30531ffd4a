package manifest

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Fingerprint identifies one version of a file. Kind says which of Digest
// (hex content hash) or ModTime (seconds since the epoch) is meaningful;
// a ModTime of 0 is a valid epoch timestamp.
type Fingerprint struct {
	Kind    Kind
	Digest  string
	ModTime float64
}

func DigestFingerprint(hexDigest string) Fingerprint {
	return Fingerprint{Kind: KindDigest, Digest: hexDigest}
}

func ModTimeFingerprint(t time.Time) Fingerprint {
	return ModTimeSeconds(float64(t.UnixNano()) / float64(time.Second))
}

func ModTimeSeconds(sec float64) Fingerprint {
	return Fingerprint{Kind: KindModTime, ModTime: sec}
}

func (f Fingerprint) IsDigest() bool {
	return f.Kind == KindDigest
}

func (f Fingerprint) IsZero() bool {
	return f.Kind == KindEmpty
}

func (f Fingerprint) String() string {
	if f.IsDigest() {
		return f.Digest
	}
	return strconv.FormatFloat(f.ModTime, 'f', -1, 64)
}

func (f Fingerprint) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case KindDigest:
		return json.Marshal(f.Digest)
	case KindModTime:
		return json.Marshal(f.ModTime)
	}
	return nil, fmt.Errorf("empty fingerprint")
}

func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("empty fingerprint")
	}
	if data[0] == '"' {
		var digest string
		if err := json.Unmarshal(data, &digest); err != nil {
			return err
		}
		if digest == "" {
			return fmt.Errorf("empty digest")
		}
		*f = DigestFingerprint(digest)
		return nil
	}
	var mtime float64
	if err := json.Unmarshal(data, &mtime); err != nil {
		return fmt.Errorf("fingerprint %s: %w", data, err)
	}
	*f = ModTimeSeconds(mtime)
	return nil
}
