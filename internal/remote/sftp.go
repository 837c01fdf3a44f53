package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

type sftpStore struct {
	conn   *ssh.Client
	client *sftp.Client
}

func connectSFTP(host, user, password string) (Store, error) {
	sshConfig := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}
	conn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening sftp session: %w", err)
	}
	log.Debug().Str("op", "remote/sftp").Msgf("Connected to %s as %s", addr, user)
	return &sftpStore{conn: conn, client: client}, nil
}

func (s *sftpStore) List(ctx context.Context, dir string) ([]string, error) {
	entries, err := s.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (s *sftpStore) Stat(ctx context.Context, remotePath string) (int64, error) {
	info, err := s.client.Stat(remotePath)
	if err != nil {
		return 0, fmt.Errorf("error statting %s: %w", remotePath, err)
	}
	return info.Size(), nil
}

// OpenRange opens a dedicated read handle positioned at offset. Each call
// gets its own handle so concurrent segment reads never share a cursor.
func (s *sftpStore) OpenRange(ctx context.Context, remotePath string, offset int64) (io.ReadCloser, error) {
	f, err := s.client.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", remotePath, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("error seeking %s to %d: %w", remotePath, offset, err)
	}
	return f, nil
}

func (s *sftpStore) Remove(ctx context.Context, remotePath string) error {
	return s.client.Remove(remotePath)
}

func (s *sftpStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}

// Join builds a remote path using forward slashes regardless of host OS.
func Join(dir, name string) string {
	return path.Join(dir, name)
}
