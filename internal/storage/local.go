package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores objects as files on the local filesystem.
type Local struct{}

var _ Store = (*Local)(nil)

func NewLocal() *Local { return &Local{} }

func (l *Local) Open(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	return f, nil
}

func (l *Local) Fetch(_ context.Context, p string) (string, func(), error) {
	if _, err := os.Stat(p); err != nil {
		return "", nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return p, func() {}, nil
}

func (l *Local) Put(_ context.Context, localFile, p string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	src, err := os.Open(localFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", localFile, err)
	}
	defer src.Close()

	dst, err := os.Create(p)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", p, err)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		return n, fmt.Errorf("failed to copy to %s: %w", p, err)
	}
	if err := dst.Close(); err != nil {
		return n, fmt.Errorf("failed to close %s: %w", p, err)
	}
	return n, nil
}

func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(prefix, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, p)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return out, nil
}

func (l *Local) RemoveAll(_ context.Context, prefix string) error {
	if err := os.RemoveAll(prefix); err != nil {
		return fmt.Errorf("failed to remove %s: %w", prefix, err)
	}
	return nil
}

// CheckAccess creates root if needed and writes then removes a test file in it.
func (l *Local) CheckAccess(_ context.Context, root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", root, err)
	}
	testFile := filepath.Join(root, accessTestKey)
	if err := os.WriteFile(testFile, []byte(accessTestContent), 0644); err != nil {
		return fmt.Errorf("write test failed: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return fmt.Errorf("failed to clean up test file: %w", err)
	}
	return nil
}
