package transfer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/sftp"
)

type fakeInfo struct{ name string }

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() fs.FileMode  { return fs.ModeDir }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return true }
func (f fakeInfo) Sys() any           { return nil }

type fakeDirs struct {
	existing []string
	made     []string
	listErr  error
}

func (f *fakeDirs) ReadDir(string) ([]os.FileInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []os.FileInfo
	for _, name := range f.existing {
		out = append(out, fakeInfo{name: name})
	}
	return out, nil
}

func (f *fakeDirs) Mkdir(p string) error {
	f.made = append(f.made, p)
	return nil
}

func TestEnsureDayDirCreatesMissing(t *testing.T) {
	dirs := &fakeDirs{existing: []string{"20261016"}}
	if err := ensureDayDir(dirs, "/audio/standard", "20261017"); err != nil {
		t.Fatal(err)
	}
	if len(dirs.made) != 1 || dirs.made[0] != "/audio/standard/20261017" {
		t.Fatalf("made = %v", dirs.made)
	}
}

func TestEnsureDayDirKeepsExisting(t *testing.T) {
	dirs := &fakeDirs{existing: []string{"20261017"}}
	if err := ensureDayDir(dirs, "/audio/standard", "20261017"); err != nil {
		t.Fatal(err)
	}
	if len(dirs.made) != 0 {
		t.Fatalf("unexpected mkdir: %v", dirs.made)
	}
}

func TestEnsureDayDirListError(t *testing.T) {
	dirs := &fakeDirs{listErr: errors.New("permission denied")}
	if err := ensureDayDir(dirs, "/audio/standard", "20261017"); err == nil {
		t.Fatal("expected error")
	}
}

// newMemClient serves an in-memory filesystem over a pipe.
func newMemClient(t *testing.T) *sftp.Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func TestUploadWritesArchiveUnderDayDir(t *testing.T) {
	client := newMemClient(t)
	if err := client.MkdirAll("/audio/standard"); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(t.TempDir(), "20261017143000_encrypted.zip")
	if err := os.WriteFile(local, []byte("encrypted archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	remote, err := upload(context.Background(), client, local, "/audio/standard", "20261017", "20261017143000.zip")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if remote != "/audio/standard/20261017/20261017143000.zip" {
		t.Fatalf("remote = %s", remote)
	}

	f, err := client.Open(remote)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "encrypted archive" {
		t.Fatalf("remote content = %q", data)
	}

	// a second batch on the same day reuses the directory
	if _, err := upload(context.Background(), client, local, "/audio/standard", "20261017", "20261017153000.zip"); err != nil {
		t.Fatalf("second upload: %v", err)
	}
}

func TestUploadMissingLocalFile(t *testing.T) {
	client := newMemClient(t)
	if err := client.MkdirAll("/audio/standard"); err != nil {
		t.Fatal(err)
	}
	_, err := upload(context.Background(), client, filepath.Join(t.TempDir(), "missing.zip"), "/audio/standard", "20261017", "x.zip")
	if err == nil {
		t.Fatal("expected error")
	}
}
