// Package file implements an order slot backed by a single file on disk.
package file

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"

	"github.com/xenking/canteen-orders/internal/domain/order"
)

var _ order.Slot = (*Slot)(nil)

// Slot stores the order collection in one file. Paths ending in ".gz" are
// pgzip-compressed. Writes go to a temporary file that is renamed into place.
type Slot struct {
	path string
}

// NewSlot returns a Slot for path. The file is created on first save.
func NewSlot(path string) *Slot {
	return &Slot{path: path}
}

// Path returns the file path backing the slot.
func (s *Slot) Path() string { return s.path }

func (s *Slot) compressed() bool {
	return strings.HasSuffix(s.path, ".gz")
}

// Load reads the file. A missing file is an empty slot.
func (s *Slot) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open slot")
	}
	defer func() { _ = f.Close() }()

	return ReadAll(f, s.compressed())
}

// Save replaces the file contents with data.
func (s *Slot) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create slot dir")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := WriteAll(tmp, data, s.compressed()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "replace slot")
	}
	return nil
}

// ReadAll reads r fully, decompressing with pgzip when gz is set.
func ReadAll(r io.Reader, gz bool) ([]byte, error) {
	if gz {
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "gzip reader")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return data, nil
}

// WriteAll writes data to w, compressing with pgzip when gz is set.
func WriteAll(w io.Writer, data []byte, gz bool) error {
	if !gz {
		if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
			return errors.Wrap(err, "write")
		}
		return nil
	}

	zw := pgzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "gzip write")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "gzip close")
	}
	return nil
}
