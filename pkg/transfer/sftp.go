// Package transfer ships encrypted batch archives to the remote SFTP endpoint.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

type Transport interface {
	// Upload places localPath at <root>/<day>/<name>, creating the day
	// directory when missing, and returns the remote path.
	Upload(ctx context.Context, localPath, root, day, name string) (string, error)
}

type Options struct {
	Endpoint string
	User     string
	Password string
	HostKey  string
	Timeout  time.Duration
}

type SFTPTransport struct {
	opts Options
}

func NewSFTPTransport(opts Options) *SFTPTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &SFTPTransport{opts: opts}
}

func (t *SFTPTransport) hostKeyCallback(ctx context.Context) (ssh.HostKeyCallback, error) {
	if t.opts.HostKey == "" {
		zerolog.Ctx(ctx).Warn().Str("endpoint", t.opts.Endpoint).Msg("no sftp host key configured, accepting any")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(t.opts.HostKey))
	if err != nil {
		return nil, fmt.Errorf("parse sftp host key: %w", err)
	}
	return ssh.FixedHostKey(key), nil
}

func (t *SFTPTransport) Upload(ctx context.Context, localPath, root, day, name string) (string, error) {
	callback, err := t.hostKeyCallback(ctx)
	if err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Info().Str("endpoint", t.opts.Endpoint).Msg("connecting to sftp server")
	conn, err := ssh.Dial("tcp", t.opts.Endpoint, &ssh.ClientConfig{
		User:            t.opts.User,
		Auth:            []ssh.AuthMethod{ssh.Password(t.opts.Password)},
		HostKeyCallback: callback,
		Timeout:         t.opts.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("dial sftp: %w", err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return "", fmt.Errorf("open sftp session: %w", err)
	}
	defer client.Close()

	return upload(ctx, client, localPath, root, day, name)
}

// remoteFS is the subset of *sftp.Client used for an upload.
type remoteFS interface {
	ReadDir(p string) ([]os.FileInfo, error)
	Mkdir(p string) error
	Create(p string) (*sftp.File, error)
}

func upload(ctx context.Context, client remoteFS, localPath, root, day, name string) (string, error) {
	if err := ensureDayDir(client, root, day); err != nil {
		return "", err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	remotePath := path.Join(root, day, name)
	out, err := client.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", remotePath, err)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", remotePath, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", remotePath, err)
	}

	zerolog.Ctx(ctx).Info().Str("remote_path", remotePath).Int64("bytes", n).Msg("archive uploaded")
	return remotePath, nil
}

type dirLister interface {
	ReadDir(p string) ([]os.FileInfo, error)
	Mkdir(p string) error
}

func ensureDayDir(client dirLister, root, day string) error {
	entries, err := client.ReadDir(root)
	if err != nil {
		return fmt.Errorf("list %s: %w", root, err)
	}
	for _, entry := range entries {
		if entry.Name() == day {
			return nil
		}
	}
	if err := client.Mkdir(path.Join(root, day)); err != nil {
		return fmt.Errorf("mkdir %s/%s: %w", root, day, err)
	}
	return nil
}
