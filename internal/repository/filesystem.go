package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// Filesystem keeps the templates at a local directory.
type Filesystem struct {
	Dir string
}

// Init creates the directory when needed.
func (f *Filesystem) Init() error {
	if f.Dir == "" {
		return errors.New("internal/repository/Filesystem.Dir can't be empty")
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("fail to create the directory '%s': %w", f.Dir, err)
	}
	return nil
}

// Get the file. A missing file is returned as nil.
func (f Filesystem) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	span, _ := ddTracer.StartSpanFromContext(ctx, "Filesystem.Get")
	defer span.Finish()

	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail to open '%s': %w", key, err)
	}
	return file, nil
}

// Put writes to a temporary file first so readers never see a partial payload.
func (f Filesystem) Put(ctx context.Context, key string, payload io.Reader) (err error) {
	span, _ := ddTracer.StartSpanFromContext(ctx, "Filesystem.Put")
	defer span.Finish()

	path, err := f.path(key)
	if err != nil {
		return err
	}
	file, err := os.CreateTemp(f.Dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("fail to create a temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(file.Name())
		}
	}()

	if _, err := io.Copy(file, payload); err != nil {
		file.Close()
		return fmt.Errorf("fail to write '%s': %w", key, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("fail to close '%s': %w", key, err)
	}
	if err := os.Rename(file.Name(), path); err != nil {
		return fmt.Errorf("fail to move '%s' into place: %w", key, err)
	}
	return nil
}

// Delete the file. Deleting a missing file is not an error.
func (f Filesystem) Delete(ctx context.Context, key string) error {
	span, _ := ddTracer.StartSpanFromContext(ctx, "Filesystem.Delete")
	defer span.Finish()

	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fail to delete '%s': %w", key, err)
	}
	return nil
}

// List the files ending with the suffix.
func (f Filesystem) List(ctx context.Context, suffix string) ([]string, error) {
	span, _ := ddTracer.StartSpanFromContext(ctx, "Filesystem.List")
	defer span.Finish()

	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("fail to read the directory '%s': %w", f.Dir, err)
	}
	var result []string
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateKey(entry.Name(), suffix) {
			continue
		}
		result = append(result, entry.Name())
	}
	return result, nil
}

func (f Filesystem) path(key string) (string, error) {
	if !filepath.IsLocal(key) || filepath.Base(key) != key {
		return "", fmt.Errorf("invalid key '%s'", key)
	}
	return filepath.Join(f.Dir, key), nil
}
