// Package archive packs a staged batch directory and hands the result to the
// external encryption tool.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

const zipExt = ".zip"

// ZipDir writes dir/<name>.zip with every regular file of dir, removing each
// file once it has been added. A failure part way leaves the already-added
// files only inside the archive.
func ZipDir(ctx context.Context, dir, name string) (string, error) {
	zipPath := filepath.Join(dir, name+zipExt)
	out, err := os.Create(zipPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	zw := zip.NewWriter(out)
	added := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == zipExt {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := addFile(zw, path, entry.Name()); err != nil {
			zw.Close()
			return "", fmt.Errorf("add %s: %w", entry.Name(), err)
		}
		if err := os.Remove(path); err != nil {
			zw.Close()
			return "", err
		}
		added++
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Info().Str("archive", zipPath).Int("files", added).Msg("batch compressed")
	return zipPath, out.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

type Encryptor interface {
	Encrypt(ctx context.Context, zipPath string) (string, error)
}

// CommandEncryptor runs an external tool that writes <base><Suffix>.zip next
// to its input. "{input}" in Command is replaced with the archive path.
type CommandEncryptor struct {
	Command []string
	Suffix  string
}

func NewCommandEncryptor(command []string, suffix string) *CommandEncryptor {
	return &CommandEncryptor{Command: command, Suffix: suffix}
}

func EncryptedPath(zipPath, suffix string) string {
	return strings.TrimSuffix(zipPath, zipExt) + suffix + zipExt
}

func (e *CommandEncryptor) Encrypt(ctx context.Context, zipPath string) (string, error) {
	if len(e.Command) == 0 {
		return "", fmt.Errorf("no encryption command configured")
	}

	args := make([]string, len(e.Command))
	for i, arg := range e.Command {
		args[i] = strings.ReplaceAll(arg, "{input}", zipPath)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	zerolog.Ctx(ctx).Info().Strs("args", args).Msg("executing encryption command")
	output, err := cmd.CombinedOutput()
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("output", string(output)).Msg("encryption command failed")
		return "", fmt.Errorf("encryption failed: %w", err)
	}

	encrypted := EncryptedPath(zipPath, e.Suffix)
	if _, err := os.Stat(encrypted); err != nil {
		return "", fmt.Errorf("encrypted archive missing: %w", err)
	}
	return encrypted, nil
}
