package manifest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDigestManifest(t *testing.T) {
	in := `{"a.txt": "5d41402abc4b2a76b9719d911017c592",
		"b/c.txt": "7d793037a0760186574b0282f2f435e7"}`
	m, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b/c.txt"}, m.Paths())
	assert.Equal(t,
		DigestFingerprint("5d41402abc4b2a76b9719d911017c592"),
		m["a.txt"],
	)
	kind, err := m.Kind()
	require.NoError(t, err)
	assert.Equal(t, KindDigest, kind)
}

func TestDecodeModTimeManifest(t *testing.T) {
	in := `{"index.html": 1700000000.25}`
	m, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 1700000000.25, m["index.html"].ModTime)
	assert.False(t, m["index.html"].IsDigest())
	kind, err := m.Kind()
	require.NoError(t, err)
	assert.Equal(t, KindModTime, kind)
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"garbage":     `not json`,
		"array":       `["a.txt"]`,
		"null":        `null`,
		"null value":  `{"a.txt": null}`,
		"empty value": `{"a.txt": ""}`,
		"mixed":       `{"a.txt": "abc", "b.txt": 12.5}`,
		"absolute":    `{"/etc/passwd": "abc"}`,
		"escape":      `{"../x": "abc"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := Manifest{
		"z.txt":   DigestFingerprint("02"),
		"a/b.txt": DigestFingerprint("01"),
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	out := buf.String()
	assert.Less(t,
		strings.Index(out, "a/b.txt"), strings.Index(out, "z.txt"),
	)

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, m.Equal(back))
}

func TestBackslashKeyRoundTrip(t *testing.T) {
	m := Manifest{`odd\name.txt`: DigestFingerprint("01")}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, m.Equal(back))
}

func TestEncodeModTimeAsNumber(t *testing.T) {
	ts := time.Unix(1700000000, 500000000)
	m := Manifest{"a": ModTimeFingerprint(ts)}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))
	assert.Contains(t, buf.String(), `"a": 1700000000.5`)
}

func TestEncodeNil(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	assert.Equal(t, "{}", strings.TrimSpace(buf.String()))
}

func TestFilter(t *testing.T) {
	m := Manifest{
		"a.txt":            DigestFingerprint("1"),
		".git/secrets.txt": DigestFingerprint("2"),
		".git/HEAD":        DigestFingerprint("3"),
	}
	kept, dropped := m.Filter(func(p string) bool {
		return strings.HasPrefix(p, ".git/")
	})
	assert.Equal(t, []string{"a.txt"}, kept.Paths())
	assert.Equal(t,
		[]string{".git/HEAD", ".git/secrets.txt"}, dropped,
	)
	assert.Len(t, m, 3)
}

func TestCloneAndEqual(t *testing.T) {
	m := Manifest{"a": DigestFingerprint("1")}
	c := m.Clone()
	assert.True(t, m.Equal(c))
	c["a"] = DigestFingerprint("2")
	assert.False(t, m.Equal(c))
	assert.False(t, m.Equal(Manifest{}))
}

func TestFingerprintString(t *testing.T) {
	assert.Equal(t, "abc", DigestFingerprint("abc").String())
	assert.Equal(t, "12.5", ModTimeSeconds(12.5).String())
	assert.Equal(t, "0", ModTimeSeconds(0).String())
	assert.True(t, Fingerprint{}.IsZero())
	assert.False(t, ModTimeSeconds(0).IsZero())
}

func TestEpochModTimeRoundTrip(t *testing.T) {
	m := Manifest{
		"a.txt": ModTimeFingerprint(time.Unix(0, 0)),
		"b.txt": ModTimeSeconds(1700000000),
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))
	assert.Contains(t, buf.String(), `"a.txt": 0`)

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, m.Equal(back))
	kind, err := back.Kind()
	require.NoError(t, err)
	assert.Equal(t, KindModTime, kind)
}

func TestDecodeZeroModTime(t *testing.T) {
	m, err := Decode(strings.NewReader(`{"a.txt": 0}`))
	require.NoError(t, err)
	assert.Equal(t, ModTimeSeconds(0), m["a.txt"])
}
