package remote

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SFTPOptions struct {
	Host       string
	Port       int
	User       string
	Password   string
	KnownHosts string
	Root       string
	Timeout    time.Duration
}

type SFTPStore struct {
	conn   io.Closer
	client *sftp.Client
	root   string
}

// DialSFTP opens a password-authenticated SFTP session. Host keys are only
// verified when a known_hosts file is configured.
func DialSFTP(opts SFTPOptions) (*SFTPStore, error) {
	addr := opts.Host
	if !strings.Contains(addr, ":") {
		port := opts.Port
		if port == 0 {
			port = 22
		}
		addr = net.JoinHostPort(addr, strconv.Itoa(port))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, errors.Wrapf(err, "load known hosts %s", opts.KnownHosts)
		}
		hostKeyCallback = cb
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            []ssh.AuthMethod{ssh.Password(opts.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, &TransportError{Op: "dial", Path: addr, Err: err}
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, &TransportError{Op: "sftp", Path: addr, Err: err}
	}
	return newSFTPStore(client, conn, opts.Root), nil
}

// newSFTPStore serves root through client. conn is closed after the client.
func newSFTPStore(client *sftp.Client, conn io.Closer, root string) *SFTPStore {
	if root == "" {
		root = "/"
	}
	return &SFTPStore{conn: conn, client: client, root: root}
}

func (s *SFTPStore) abs(p string) string {
	return path.Join(s.root, p)
}

func (s *SFTPStore) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := s.client.ReadDir(s.abs(dir))
	if err != nil {
		return nil, &TransportError{Op: "list", Path: dir, Err: err}
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(info.Name(), info))
	}
	return entries, nil
}

func (s *SFTPStore) Glob(ctx context.Context, dir, pattern string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := s.abs(dir)
	matches, err := s.client.Glob(path.Join(base, pattern))
	if err != nil {
		return nil, &TransportError{Op: "glob", Path: path.Join(dir, pattern), Err: err}
	}
	entries := make([]Entry, 0, len(matches))
	for _, match := range matches {
		info, err := s.client.Stat(match)
		if err != nil {
			return nil, &TransportError{Op: "stat", Path: match, Err: err}
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(match, base), "/")
		entries = append(entries, entryFromInfo(rel, info))
	}
	return entries, nil
}

func (s *SFTPStore) Download(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := s.client.Open(s.abs(remotePath))
	if err != nil {
		return &TransportError{Op: "open", Path: remotePath, Err: err}
	}
	defer src.Close()
	if err := writeLocal(localPath, src); err != nil {
		return &TransportError{Op: "download", Path: remotePath, Err: err}
	}
	return nil
}

func (s *SFTPStore) Close() error {
	cerr := s.client.Close()
	if err := s.conn.Close(); err != nil && cerr == nil {
		cerr = err
	}
	return cerr
}

func entryFromInfo(name string, info os.FileInfo) Entry {
	return Entry{
		Name:    name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
}

// writeLocal streams r into a temporary sibling of localPath and renames it
// into place, so an interrupted transfer never leaves a truncated file under
// the final name.
func writeLocal(localPath string, r io.Reader) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+".part-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	// Replace rather than overwrite so the local creation time moves forward.
	_ = os.Remove(localPath)
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
