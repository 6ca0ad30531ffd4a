// Package s3remote syncs into an S3 compatible bucket. Directories do not
// exist in a bucket, so EnsureDir only validates its argument.
package s3remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tqbf/ftpsync/pkg/paths"
	"github.com/tqbf/ftpsync/pkg/remote"
)

type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
	Logger    *slog.Logger
}

type Transport struct {
	client *minio.Client
	bucket string
	prefix string
	log    *slog.Logger
}

var _ remote.Transport = (*Transport)(nil)

func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			cfg.AccessKey, cfg.SecretKey, "",
		),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client %s: %w", cfg.Endpoint, err)
	}

	log.Info("connecting",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket,
	)
	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}
	return &Transport{
		client: client,
		bucket: cfg.Bucket,
		prefix: cleanPrefix(cfg.Prefix),
		log:    log,
	}, nil
}

func cleanPrefix(prefix string) string {
	prefix = paths.CleanRelPath(prefix)
	if prefix == "." || prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (t *Transport) key(p string) string {
	return t.prefix + paths.CleanRelPath(p)
}

// dirKey is the listing prefix for dir, ending in a slash unless it names
// the root.
func (t *Transport) dirKey(dir string) string {
	dir = paths.CleanRelPath(dir)
	if dir == "." || dir == "" {
		return t.prefix
	}
	return t.prefix + dir + "/"
}

func (t *Transport) EnsureDir(
	ctx context.Context, dir string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir = paths.CleanRelPath(dir)
	if dir == "." {
		return nil
	}
	return paths.ValidateRelPath(dir)
}

func (t *Transport) Upload(
	ctx context.Context, r io.Reader, p string,
) error {
	key := t.key(p)
	body, size, err := sized(r)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	_, err = t.client.PutObject(
		ctx, t.bucket, key, body, size,
		minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		},
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// sized reports how many bytes r will yield so PutObject can send a single
// request. Readers that cannot tell are buffered in memory.
func sized(r io.Reader) (io.Reader, int64, error) {
	switch v := r.(type) {
	case interface{ Len() int }:
		return r, int64(v.Len()), nil
	case interface{ Stat() (os.FileInfo, error) }:
		info, err := v.Stat()
		if err == nil && info.Mode().IsRegular() {
			return r, info.Size(), nil
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// Delete stats the object first; S3 reports success for removing a key
// that does not exist.
func (t *Transport) Delete(ctx context.Context, p string) error {
	key := t.key(p)
	_, err := t.client.StatObject(
		ctx, t.bucket, key, minio.StatObjectOptions{},
	)
	if err != nil {
		if isNoSuchKey(err) {
			return remote.NotFound("delete", p, err)
		}
		return fmt.Errorf("stat %s: %w", key, err)
	}
	err = t.client.RemoveObject(
		ctx, t.bucket, key, minio.RemoveObjectOptions{},
	)
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (t *Transport) List(
	ctx context.Context, dir string,
) ([]remote.Entry, error) {
	prefix := t.dirKey(dir)
	var entries []remote.Entry
	for obj := range t.client.ListObjects(ctx, t.bucket,
		minio.ListObjectsOptions{Prefix: prefix},
	) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		isDir := strings.HasSuffix(name, "/")
		name = strings.TrimSuffix(name, "/")
		if name == "" {
			continue
		}
		entries = append(entries, remote.Entry{
			Name:    path.Base(name),
			Size:    obj.Size,
			ModTime: obj.LastModified,
			IsDir:   isDir,
		})
	}
	if len(entries) == 0 && prefix != t.prefix {
		return nil, remote.NotFound("list", dir, nil)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func (t *Transport) Download(
	ctx context.Context, p string,
) (io.ReadCloser, error) {
	key := t.key(p)
	obj, err := t.client.GetObject(
		ctx, t.bucket, key, minio.GetObjectOptions{},
	)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, remote.NotFound("download", p, err)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return obj, nil
}

func (t *Transport) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
