// Package storage gives the engine uniform access to local files and S3
// objects. Locations are plain paths or s3://, s3a:// and s3n:// URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store reads and writes objects at one kind of location.
type Store interface {
	// Open streams the object at p.
	Open(ctx context.Context, p string) (io.ReadCloser, error)
	// Fetch makes the object at p available as a local file. release removes
	// any local copy made for the caller.
	Fetch(ctx context.Context, p string) (localPath string, release func(), err error)
	// Put copies a local file to p and returns the number of bytes stored.
	Put(ctx context.Context, localFile, p string) (int64, error)
	// List returns the locations of every object under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// RemoveAll deletes every object under prefix.
	RemoveAll(ctx context.Context, prefix string) error
	// CheckAccess checks that objects can be written and deleted under root.
	CheckAccess(ctx context.Context, root string) error
}

// Options configures the stores.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
	TempDir         string
	VerifyUpload    bool
}

// Router dispatches each call to the local or the S3 store based on the location.
// The S3 store is created on first use so a local-only run needs no credentials.
type Router struct {
	opts  Options
	log   *slog.Logger
	local *Local

	mu sync.Mutex
	s3 *S3
}

var _ Store = (*Router)(nil)

// New returns a Router and creates the temp directory.
func New(opts Options, log *slog.Logger) (*Router, error) {
	if err := os.MkdirAll(opts.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Router{opts: opts, log: log, local: NewLocal()}, nil
}

func (r *Router) store(p string) (Store, error) {
	if !IsS3(p) {
		return r.local, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 == nil {
		s, err := NewS3(r.opts, r.log)
		if err != nil {
			return nil, err
		}
		r.s3 = s
	}
	return r.s3, nil
}

func (r *Router) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	s, err := r.store(p)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, p)
}

func (r *Router) Fetch(ctx context.Context, p string) (string, func(), error) {
	s, err := r.store(p)
	if err != nil {
		return "", nil, err
	}
	return s.Fetch(ctx, p)
}

func (r *Router) Put(ctx context.Context, localFile, p string) (int64, error) {
	s, err := r.store(p)
	if err != nil {
		return 0, err
	}
	return s.Put(ctx, localFile, p)
}

func (r *Router) List(ctx context.Context, prefix string) ([]string, error) {
	s, err := r.store(prefix)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, prefix)
}

func (r *Router) RemoveAll(ctx context.Context, prefix string) error {
	s, err := r.store(prefix)
	if err != nil {
		return err
	}
	return s.RemoveAll(ctx, prefix)
}

func (r *Router) CheckAccess(ctx context.Context, root string) error {
	s, err := r.store(root)
	if err != nil {
		return err
	}
	return s.CheckAccess(ctx, root)
}

// TempDir returns the local scratch directory.
func (r *Router) TempDir() string { return r.opts.TempDir }

// Cleanup removes the temp directory.
func (r *Router) Cleanup() {
	r.log.Debug("Cleaning up temp directory", "dir", r.opts.TempDir)
	if err := os.RemoveAll(r.opts.TempDir); err != nil {
		r.log.Warn("Failed to clean up temp directory", "dir", r.opts.TempDir, "error", err)
	}
}

// IsS3 reports whether p is an S3 URL.
func IsS3(p string) bool {
	_, _, err := ParseS3(p)
	return err == nil
}

// ParseS3 splits an s3://, s3a:// or s3n:// URL into bucket and key.
func ParseS3(p string) (bucket, key string, err error) {
	for _, scheme := range []string{"s3://", "s3a://", "s3n://"} {
		if rest, ok := strings.CutPrefix(p, scheme); ok {
			bucket, key, _ = strings.Cut(rest, "/")
			if bucket == "" {
				return "", "", fmt.Errorf("missing bucket in %q", p)
			}
			return bucket, key, nil
		}
	}
	return "", "", fmt.Errorf("not an S3 URL: %q", p)
}

// Join appends path elements to a location using '/' separators.
func Join(base string, elem ...string) string {
	out := strings.TrimSuffix(base, "/")
	for _, e := range elem {
		out += "/" + strings.Trim(e, "/")
	}
	return out
}

// Resolve locates name under root. Absolute paths and S3 URLs are returned
// unchanged; S3 roots are joined with '/', local roots with the OS separator.
func Resolve(root, name string) string {
	if IsS3(name) || filepath.IsAbs(name) {
		return name
	}
	if IsS3(root) {
		return Join(root, name)
	}
	return filepath.Join(root, name)
}
