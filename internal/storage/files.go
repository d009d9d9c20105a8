package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrFileNotFound is returned when an audio reference is unknown.
var ErrFileNotFound = errors.New("audio file not found")

// DiskFiles stores uploaded audio below a root directory. References are
// "<uuid>/<name>" so they stay readable in logs.
type DiskFiles struct {
	root string
}

// NewDiskFiles creates the root directory when needed.
func NewDiskFiles(root string) (*DiskFiles, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "vaultscribe")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &DiskFiles{root: root}, nil
}

// SaveAudio streams r to disk and returns the file reference.
func (d *DiskFiles) SaveAudio(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error) {
	ref := uuid.NewString() + "/" + sanitizeName(name)
	path := filepath.Join(d.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return ref, nil
}

// ReadAudio loads the audio bytes behind ref.
func (d *DiskFiles) ReadAudio(ctx context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, ErrFileNotFound
	}
	data, err := os.ReadFile(filepath.Join(d.root, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return data, nil
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "audio"
	}
	return name
}
