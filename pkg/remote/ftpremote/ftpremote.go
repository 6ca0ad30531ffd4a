// Package ftpremote implements remote.Transport over a single FTP control
// connection.
package ftpremote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tqbf/ftpsync/pkg/paths"
	"github.com/tqbf/ftpsync/pkg/remote"
)

// Reply 521 is what some servers send for MKD on an existing directory.
const statusDirExists = 521

type Config struct {
	// Host is "host" or "host:port"; port 21 is assumed when absent.
	Host     string
	User     string
	Password string

	// Root is the directory all transport paths are relative to. It is
	// created when missing.
	Root string

	Timeout     time.Duration
	TLS         bool
	DisableEPSV bool
	Logger      *slog.Logger
}

type Transport struct {
	conn *ftp.ServerConn
	root string
	made map[string]bool
	log  *slog.Logger
}

var _ remote.Transport = (*Transport)(nil)

func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "21")
	}
	host, _, _ := net.SplitHostPort(addr)

	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(cfg.Timeout))
	}
	if cfg.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(
			&tls.Config{ServerName: host},
		))
	}
	if cfg.DisableEPSV {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	log.Info("connecting", "addr", addr, "tls", cfg.TLS)
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("login as %s: %w", cfg.User, err)
	}
	log.Info("connected", "addr", addr, "user", cfg.User)

	t := &Transport{
		conn: conn,
		made: make(map[string]bool),
		log:  log,
	}
	if err := t.enterRoot(cfg.Root); err != nil {
		conn.Quit()
		return nil, err
	}
	return t, nil
}

// enterRoot creates root if needed, changes into it and records the
// server's absolute name for it. An absolute root is always entered, even
// "/", so the login directory never stands in for it.
func (t *Transport) enterRoot(root string) error {
	login, err := t.conn.CurrentDir()
	if err != nil {
		return fmt.Errorf("pwd: %w", err)
	}
	t.root = login

	root = strings.TrimSpace(root)
	segs := rootSegments(root)
	if len(segs) > 0 {
		if err := t.mkdirAll(segs); err != nil {
			return fmt.Errorf("create root %s: %w", root, err)
		}
	}
	if len(segs) > 0 || strings.HasPrefix(root, "/") {
		if err := t.conn.ChangeDir(root); err != nil {
			return fmt.Errorf("cwd %s: %w", root, err)
		}
		if t.root, err = t.conn.CurrentDir(); err != nil {
			return fmt.Errorf("pwd: %w", err)
		}
		// Paths cached so far were relative to the login directory.
		t.made = make(map[string]bool)
	}
	t.log.Info("remote root", "dir", t.root)
	return nil
}

func (t *Transport) Root() string {
	return t.root
}

func (t *Transport) EnsureDir(
	ctx context.Context, dir string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.mkdirAll(paths.Segments(dir))
}

func (t *Transport) mkdirAll(segs []string) error {
	for _, seg := range segs {
		if t.made[seg] {
			continue
		}
		err := t.conn.MakeDir(seg)
		if err == nil {
			t.log.Info("created directory", "dir", seg)
			t.made[seg] = true
			continue
		}
		code, _ := replyCode(err)
		if code != ftp.StatusFileUnavailable &&
			code != statusDirExists {
			return fmt.Errorf("mkdir %s: %w", seg, err)
		}
		exists, cwdErr := t.isDir(seg)
		if cwdErr != nil {
			return cwdErr
		}
		if !exists {
			return fmt.Errorf("mkdir %s: %w", seg, err)
		}
		t.log.Debug("directory exists", "dir", seg)
		t.made[seg] = true
	}
	return nil
}

// isDir checks dir by changing into it and back to the root.
func (t *Transport) isDir(dir string) (bool, error) {
	if err := t.conn.ChangeDir(dir); err != nil {
		return false, nil
	}
	if err := t.conn.ChangeDir(t.root); err != nil {
		return false, fmt.Errorf("cwd %s: %w", t.root, err)
	}
	return true, nil
}

func (t *Transport) Upload(
	ctx context.Context, r io.Reader, p string,
) error {
	p = paths.CleanRelPath(p)
	if err := t.EnsureDir(ctx, path.Dir(p)); err != nil {
		return err
	}
	if err := t.conn.Stor(p, r); err != nil {
		return fmt.Errorf("stor %s: %w", p, err)
	}
	return nil
}

func (t *Transport) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = paths.CleanRelPath(p)
	err := t.conn.Delete(p)
	if err == nil {
		return nil
	}
	if code, msg := replyCode(err); code == ftp.StatusFileUnavailable &&
		looksMissing(msg) {
		return remote.NotFound("dele", p, err)
	}
	return fmt.Errorf("dele %s: %w", p, err)
}

func (t *Transport) List(
	ctx context.Context, dir string,
) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir = paths.CleanRelPath(dir)
	if dir == "." {
		dir = ""
	}
	list, err := t.conn.List(dir)
	if err != nil {
		if code, _ := replyCode(err); code == ftp.StatusFileUnavailable {
			return nil, remote.NotFound("list", dir, err)
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	entries := make([]remote.Entry, 0, len(list))
	for _, e := range list {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, remote.Entry{
			Name:    e.Name,
			Size:    int64(e.Size),
			ModTime: e.Time,
			IsDir:   e.Type == ftp.EntryTypeFolder,
		})
	}
	return entries, nil
}

// Download opens p for reading. Any permanent or transient "file
// unavailable" reply counts as absence, since servers use it for both
// missing files and files the user may not see.
func (t *Transport) Download(
	ctx context.Context, p string,
) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = paths.CleanRelPath(p)
	resp, err := t.conn.Retr(p)
	if err != nil {
		code, _ := replyCode(err)
		if code == ftp.StatusFileUnavailable ||
			code == ftp.StatusFileActionIgnored {
			return nil, remote.NotFound("retr", p, err)
		}
		return nil, fmt.Errorf("retr %s: %w", p, err)
	}
	return resp, nil
}

func (t *Transport) Close() error {
	t.log.Info("closing connection")
	return t.conn.Quit()
}

func replyCode(err error) (int, string) {
	var te *textproto.Error
	if errors.As(err, &te) {
		return te.Code, te.Msg
	}
	return 0, ""
}

var missingPhrases = []string{
	"no such file",
	"not found",
	"does not exist",
	"doesn't exist",
	"cannot find",
	"can't find",
}

func looksMissing(msg string) bool {
	msg = strings.ToLower(msg)
	for _, phrase := range missingPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// rootSegments lists the directories leading to root, keeping a leading
// slash for absolute roots.
func rootSegments(root string) []string {
	root = strings.TrimSpace(root)
	abs := strings.HasPrefix(root, "/")
	segs := paths.Segments(root)
	if abs {
		for i := range segs {
			segs[i] = "/" + segs[i]
		}
	}
	return segs
}
