package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqbf/ftpsync/pkg/config"
	"github.com/tqbf/ftpsync/pkg/fingerprint"
	"github.com/tqbf/ftpsync/pkg/plan"
	"github.com/tqbf/ftpsync/pkg/remote"
	"github.com/tqbf/ftpsync/pkg/syncer"
)

func sampleReport() *syncer.Report {
	return &syncer.Report{
		Plan: plan.Plan{
			Uploads: []plan.Action{
				{Path: "a.txt", Reason: plan.ReasonNew},
				{Path: "b/c.txt", Reason: plan.ReasonModified},
			},
			Deletes: []string{"old.txt"},
		},
		Local: fingerprint.Snapshot{
			Files: map[string]fingerprint.File{
				"a.txt":   {Path: "a.txt", Size: 1500},
				"b/c.txt": {Path: "b/c.txt", Size: 20},
				"d.txt":   {Path: "d.txt", Size: 7},
			},
		},
		Files:         3,
		Uploaded:      []string{"a.txt", "b/c.txt"},
		Deleted:       []string{"old.txt"},
		UploadedBytes: 1520,
		Elapsed:       1500 * time.Millisecond,
	}
}

func TestPrintChanges(t *testing.T) {
	var buf bytes.Buffer
	printChanges(&buf, sampleReport())
	assert.Equal(t,
		"  + a.txt (1.5 kB)\n"+
			"  ~ b/c.txt (20 B)\n"+
			"  - old.txt\n",
		buf.String(),
	)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sampleReport(), true)
	assert.Equal(t, "2 to transfer (1.5 kB), 1 to delete\n", buf.String())

	buf.Reset()
	rep := sampleReport()
	rep.Retained = []string{"x.txt"}
	printSummary(&buf, rep, false)
	assert.Equal(t,
		"Transferred 2 files (1.5 kB) in 1.5s\n"+
			"Deleted 1 files\n"+
			"1 deletes failed and will be retried: x.txt\n",
		buf.String(),
	)
}

func TestWritePlanJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePlanJSON(&buf, "target", sampleReport()))

	var got planJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "target", got.Target)
	assert.Equal(t, []planTransfer{
		{Path: "a.txt", Size: 1500, Reason: "new"},
		{Path: "b/c.txt", Size: 20, Reason: "modified"},
	}, got.Transfers)
	assert.Equal(t, []string{"old.txt"}, got.Deletes)
	assert.Equal(t, planSummary{
		TransferCount: 2,
		TransferBytes: 1520,
		DeleteCount:   1,
		LocalFiles:    3,
	}, got.Summary)
}

func TestWritePlanJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePlanJSON(&buf, "t", &syncer.Report{}))
	assert.Contains(t, buf.String(), `"transfers": []`)
	assert.Contains(t, buf.String(), `"deletes": []`)
	assert.NotContains(t, buf.String(), "excluded")
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	printEntries(&buf, []remote.Entry{
		{Name: "css", IsDir: true},
		{Name: "index.html", Size: 2048},
	})
	assert.Equal(t,
		"       dir  css/\n"+
			"    2.0 kB  index.html  \n",
		buf.String(),
	)
}

func TestDescribeTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "ftp.example.com"
	cfg.User = "deploy"
	cfg.RemoteDir = "public"
	assert.Equal(t,
		"ftp://deploy@ftp.example.com/public", describeTarget(cfg),
	)

	cfg.Transport = config.TransportS3
	cfg.S3.Bucket = "site"
	assert.Equal(t, "s3://site/public", describeTarget(cfg))

	cfg.Transport = config.TransportDir
	assert.Equal(t, "public", describeTarget(cfg))
}
