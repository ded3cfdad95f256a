// Package localfs manages the app-private directories on the device: the
// cache directory for removal output and intermediates, and the export
// directory for saved stickers.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Dir is a directory that files are written into atomically.
type Dir struct {
	root string
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New creates root if needed.
func New(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", abs, err)
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) Root() string { return d.root }

// Path joins name onto the directory root.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, filepath.Base(name))
}

// WriteFile streams write into a temp file and renames it to name, so a
// reader never sees a partial file. It returns the final path.
func (d *Dir) WriteFile(ctx context.Context, name string, write func(io.Writer) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	final := d.Path(name)
	tmp, err := os.CreateTemp(d.root, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync %s: %w", final, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", final, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("rename into %s: %w", final, err)
	}
	tmpName = ""
	return final, nil
}

// WriteBytes writes data to name atomically.
func (d *Dir) WriteBytes(ctx context.Context, name string, data []byte) (string, error) {
	return d.WriteFile(ctx, name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFrom copies the file at src into the directory as name.
func (d *Dir) CopyFrom(ctx context.Context, src, name string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	return d.WriteFile(ctx, name, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Ping verifies the directory still exists and is writable.
func (d *Dir) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(d.root, ".ping-*")
	if err != nil {
		return fmt.Errorf("directory %s not writable: %w", d.root, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// ErrTooLarge is returned by ReadFile when a file exceeds the limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ReadFile reads path, refusing files larger than maxBytes when maxBytes > 0.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if maxBytes <= 0 {
		return io.ReadAll(f)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s: %w (%d bytes)", path, ErrTooLarge, maxBytes)
	}
	return data, nil
}
