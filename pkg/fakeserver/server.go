// Package fakeserver runs a minimal in-process FTP server backed by a
// directory, for tests that drive the real FTP client.
package fakeserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Server struct {
	RootDir  string
	User     string
	Password string

	ln     net.Listener
	mu     sync.Mutex
	home   string
	counts map[string]int
	fail   map[string]string
	wg     sync.WaitGroup
}

func New(rootDir string) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		RootDir:  rootDir,
		User:     "test",
		Password: "secret",
		ln:       ln,
		home:     "/",
		counts:   make(map[string]int),
		fail:     make(map[string]string),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Close() {
	s.ln.Close()
	s.wg.Wait()
}

// Count returns how many times verb was received.
func (s *Server) Count(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[strings.ToUpper(verb)]
}

// FailOn makes every verb command on the given virtual path answer with
// reply, e.g. FailOn("STOR", "/b.txt", "451 disk error").
func (s *Server) FailOn(verb, vpath, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[strings.ToUpper(verb)+" "+vpath] = reply
}

// SetHome sets the directory new sessions start in after login. It must
// exist under RootDir.
func (s *Server) SetHome(vpath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = path.Clean("/" + vpath)
}

func (s *Server) failure(verb, vpath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply, ok := s.fail[verb+" "+vpath]
	return reply, ok
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.mu.Lock()
			home := s.home
			s.mu.Unlock()
			sess := &session{srv: s, conn: conn, cwd: home}
			sess.run()
		}()
	}
}

type session struct {
	srv    *Server
	conn   net.Conn
	w      *bufio.Writer
	cwd    string
	user   string
	authed bool
	pasv   net.Listener
}

func (c *session) reply(format string, args ...any) {
	fmt.Fprintf(c.w, format+"\r\n", args...)
	c.w.Flush()
}

func (c *session) run() {
	defer c.conn.Close()
	defer c.closePasv()

	c.w = bufio.NewWriter(c.conn)
	r := bufio.NewReader(c.conn)
	c.reply("220 fakeserver ready")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		c.srv.mu.Lock()
		c.srv.counts[verb]++
		c.srv.mu.Unlock()

		if !c.authed && verb != "USER" && verb != "PASS" &&
			verb != "QUIT" && verb != "FEAT" {
			c.reply("530 Please login with USER and PASS")
			continue
		}
		if reply, ok := c.srv.failure(verb, c.virtual(arg)); ok {
			c.reply("%s", reply)
			continue
		}

		switch verb {
		case "USER":
			c.user = arg
			c.reply("331 Password required")
		case "PASS":
			if c.user == c.srv.User && arg == c.srv.Password {
				c.authed = true
				c.reply("230 Logged in")
			} else {
				c.reply("530 Login incorrect")
			}
		case "TYPE", "NOOP":
			c.reply("200 OK")
		case "PWD":
			c.reply("257 %q is the current directory", c.cwd)
		case "CWD":
			c.handleCwd(arg)
		case "MKD":
			c.handleMkd(arg)
		case "DELE":
			c.handleDele(arg)
		case "EPSV":
			c.handleEpsv()
		case "STOR":
			c.handleStor(arg)
		case "RETR":
			c.handleRetr(arg)
		case "LIST":
			c.handleList(arg)
		case "QUIT":
			c.reply("221 Goodbye")
			return
		default:
			c.reply("502 Command not implemented")
		}
	}
}

// virtual resolves p against the working directory.
func (c *session) virtual(p string) string {
	if p == "" {
		return c.cwd
	}
	if !strings.HasPrefix(p, "/") {
		p = path.Join(c.cwd, p)
	}
	return path.Clean(p)
}

func (c *session) real(vpath string) string {
	return filepath.Join(
		c.srv.RootDir, filepath.FromSlash(vpath),
	)
}

func (c *session) handleCwd(arg string) {
	vpath := c.virtual(arg)
	info, err := os.Stat(c.real(vpath))
	if err != nil || !info.IsDir() {
		c.reply("550 Failed to change directory")
		return
	}
	c.cwd = vpath
	c.reply("250 Directory successfully changed")
}

func (c *session) handleMkd(arg string) {
	vpath := c.virtual(arg)
	if _, err := os.Stat(c.real(vpath)); err == nil {
		c.reply("550 Create directory operation failed: File exists")
		return
	}
	if err := os.Mkdir(c.real(vpath), 0755); err != nil {
		c.reply("550 Create directory operation failed")
		return
	}
	c.reply("257 %q created", vpath)
}

func (c *session) handleDele(arg string) {
	vpath := c.virtual(arg)
	info, err := os.Stat(c.real(vpath))
	if err != nil {
		c.reply("550 %s: No such file or directory", arg)
		return
	}
	if info.IsDir() {
		c.reply("550 %s: Is a directory", arg)
		return
	}
	if err := os.Remove(c.real(vpath)); err != nil {
		c.reply("550 Delete operation failed")
		return
	}
	c.reply("250 Delete operation successful")
}

func (c *session) handleEpsv() {
	c.closePasv()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		c.reply("425 Cannot open data connection")
		return
	}
	c.pasv = ln
	port := ln.Addr().(*net.TCPAddr).Port
	c.reply("229 Entering Extended Passive Mode (|||%d|)", port)
}

func (c *session) closePasv() {
	if c.pasv != nil {
		c.pasv.Close()
		c.pasv = nil
	}
}

func (c *session) acceptData() (net.Conn, error) {
	if c.pasv == nil {
		return nil, fmt.Errorf("no passive listener")
	}
	defer c.closePasv()
	if tl, ok := c.pasv.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(5 * time.Second))
	}
	return c.pasv.Accept()
}

func (c *session) handleStor(arg string) {
	vpath := c.virtual(arg)
	parent := filepath.Dir(c.real(vpath))
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		c.closePasv()
		c.reply("553 Could not create file")
		return
	}
	data, err := c.acceptData()
	if err != nil {
		c.reply("425 Cannot open data connection")
		return
	}
	c.reply("150 Ok to send data")
	f, err := os.Create(c.real(vpath))
	if err != nil {
		data.Close()
		c.reply("553 Could not create file")
		return
	}
	_, copyErr := io.Copy(f, data)
	data.Close()
	f.Close()
	if copyErr != nil {
		c.reply("426 Transfer aborted")
		return
	}
	c.reply("226 Transfer complete")
}

func (c *session) handleRetr(arg string) {
	vpath := c.virtual(arg)
	f, err := os.Open(c.real(vpath))
	if err != nil {
		c.closePasv()
		c.reply("550 Failed to open file")
		return
	}
	defer f.Close()
	if info, err := f.Stat(); err != nil || info.IsDir() {
		c.closePasv()
		c.reply("550 Failed to open file")
		return
	}
	data, err := c.acceptData()
	if err != nil {
		c.reply("425 Cannot open data connection")
		return
	}
	c.reply("150 Opening BINARY mode data connection")
	_, copyErr := io.Copy(data, f)
	data.Close()
	if copyErr != nil {
		c.reply("426 Transfer aborted")
		return
	}
	c.reply("226 Transfer complete")
}

func (c *session) handleList(arg string) {
	vpath := c.virtual(arg)
	entries, err := os.ReadDir(c.real(vpath))
	if err != nil {
		c.closePasv()
		c.reply("550 Failed to list directory")
		return
	}
	data, err := c.acceptData()
	if err != nil {
		c.reply("425 Cannot open data connection")
		return
	}
	c.reply("150 Here comes the directory listing")
	w := bufio.NewWriter(data)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		perm := "-rw-r--r--"
		if info.IsDir() {
			perm = "drwxr-xr-x"
		}
		fmt.Fprintf(w, "%s 1 ftp ftp %d %s %s\r\n",
			perm,
			info.Size(),
			info.ModTime().Format("Jan 02 15:04"),
			e.Name(),
		)
	}
	w.Flush()
	data.Close()
	c.reply("226 Directory send OK")
}
