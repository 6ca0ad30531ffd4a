package s3remote

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeObject struct {
	data     []byte
	etag     string
	modified time.Time
}

// fakeS3 answers the path-style requests minio-go makes against a single
// bucket, keeping objects in memory.
type fakeS3 struct {
	bucket string
	srv    *httptest.Server

	mu      sync.Mutex
	objects map[string]fakeObject
	puts    []string
}

func newFakeS3(t *testing.T, bucket string) *fakeS3 {
	t.Helper()
	f := &fakeS3{
		bucket:  bucket,
		objects: map[string]fakeObject{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeS3) endpoint() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeS3) put(key, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(key, []byte(data))
}

func (f *fakeS3) store(key string, data []byte) {
	sum := md5.Sum(data)
	f.objects[key] = fakeObject{
		data:     data,
		etag:     hex.EncodeToString(sum[:]),
		modified: time.Now().UTC().Truncate(time.Second),
	}
}

func (f *fakeS3) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return string(obj.data), ok
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (f *fakeS3) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", bucket, "")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if key == "" {
		f.serveBucket(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, err := readBody(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "IncompleteBody", bucket, key)
			return
		}
		f.store(key, data)
		f.puts = append(f.puts, key)
		w.Header().Set("ETag", `"`+f.objects[key].etag+`"`)
		w.WriteHeader(http.StatusOK)

	case http.MethodGet, http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			writeError(w, r, http.StatusNotFound, "NoSuchKey", bucket, key)
			return
		}
		h := w.Header()
		h.Set("Content-Length", strconv.Itoa(len(obj.data)))
		h.Set("Content-Type", "application/octet-stream")
		h.Set("ETag", `"`+obj.etag+`"`)
		h.Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(obj.data)
		}

	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", bucket, key)
	}
}

func (f *fakeS3) serveBucket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && q.Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, xml.Header+
			`<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`+
			`us-east-1</LocationConstraint>`)
	case r.Method == http.MethodGet:
		f.serveList(w, q.Get("prefix"), q.Get("delimiter"))
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", f.bucket, "")
	}
}

type listContent struct {
	Key          string
	LastModified string
	ETag         string
	Size         int64
	StorageClass string
}

type listPrefix struct {
	Prefix string
}

type listResult struct {
	XMLName        xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name           string
	Prefix         string
	Delimiter      string
	KeyCount       int
	MaxKeys        int
	IsTruncated    bool
	Contents       []listContent
	CommonPrefixes []listPrefix
}

func (f *fakeS3) serveList(w http.ResponseWriter, prefix, delim string) {
	res := listResult{
		Name:      f.bucket,
		Prefix:    prefix,
		Delimiter: delim,
		MaxKeys:   1000,
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	seen := map[string]bool{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				p := prefix + rest[:i+len(delim)]
				if !seen[p] {
					seen[p] = true
					res.CommonPrefixes = append(res.CommonPrefixes,
						listPrefix{Prefix: p},
					)
				}
				continue
			}
		}
		obj := f.objects[k]
		res.Contents = append(res.Contents, listContent{
			Key:          k,
			LastModified: obj.modified.Format("2006-01-02T15:04:05.000Z"),
			ETag:         `"` + obj.etag + `"`,
			Size:         int64(len(obj.data)),
			StorageClass: "STANDARD",
		})
	}
	res.KeyCount = len(res.Contents) + len(res.CommonPrefixes)

	out, err := xml.Marshal(res)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	io.WriteString(w, xml.Header)
	w.Write(out)
}

type errorBody struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string
	Message    string
	BucketName string
	Key        string
	RequestId  string
}

func writeError(
	w http.ResponseWriter, r *http.Request,
	status int, code, bucket, key string,
) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	out, _ := xml.Marshal(errorBody{
		Code:       code,
		Message:    code,
		BucketName: bucket,
		Key:        key,
		RequestId:  "fake",
	})
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	io.WriteString(w, xml.Header)
	w.Write(out)
}

// readBody returns the object bytes of a PUT, undoing the aws-chunked
// framing minio-go uses for streaming uploads.
func readBody(r *http.Request) ([]byte, error) {
	chunked := strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") ||
		strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-")
	if !chunked {
		return io.ReadAll(r.Body)
	}

	br := bufio.NewReader(r.Body)
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}
