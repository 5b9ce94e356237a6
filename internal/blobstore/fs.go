package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"
	"thirdcoast.systems/relay/internal/faults"
)

const schemeFS = "fs"

// FS stores objects content-addressed under Root as <aa>/<blake2b-256><ext>.
type FS struct {
	Root string
}

var _ Channel = (*FS)(nil)

func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FS{Root: root}, nil
}

func (f *FS) Name() string         { return schemeFS }
func (f *FS) MaxObjectSize() int64 { return 0 }

func (f *FS) Upload(ctx context.Context, name, path string) (Handle, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "open chunk", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(f.Root, ".upload-*")
	if err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "create temp blob", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h, _ := blake2b.New256(nil)
	n, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: src})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "copy blob", err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	rel := filepath.Join(sum[:2], sum+strings.ToLower(filepath.Ext(name)))
	dst := filepath.Join(f.Root, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "create blob shard", err)
	}
	if _, err := os.Stat(dst); err == nil {
		slog.Debug("blob already stored", "name", name, "ref", rel)
	} else if err := os.Rename(tmpName, dst); err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "commit blob", err)
	}

	slog.Info("stored blob", "name", name, "ref", rel, "size", humanize.Bytes(uint64(n)))
	return Handle(schemeFS + ":" + filepath.ToSlash(rel)), nil
}

func (f *FS) path(h Handle) (string, error) {
	if h.Scheme() != schemeFS {
		return "", wrongScheme(schemeFS, h)
	}
	rel := filepath.FromSlash(h.key())
	if rel == "" || filepath.IsAbs(rel) || strings.Contains(rel, "..") {
		return "", fmt.Errorf("blobstore: invalid handle %q", h)
	}
	return filepath.Join(f.Root, rel), nil
}

func (f *FS) Open(_ context.Context, h Handle, offset, length int64) (io.ReadCloser, error) {
	p, err := f.path(h)
	if err != nil {
		return nil, err
	}
	return openFile(p, offset, length)
}

func openFile(p string, offset, length int64) (io.ReadCloser, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			file.Close()
			return nil, err
		}
	}
	if length < 0 {
		return file, nil
	}
	return readCloser{Reader: io.LimitReader(file, length), Closer: file}, nil
}

func (f *FS) Stat(_ context.Context, h Handle) (int64, error) {
	p, err := f.path(h)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (f *FS) Delete(_ context.Context, h Handle) error {
	p, err := f.path(h)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FS) LocalPath(h Handle) (string, bool) {
	p, err := f.path(h)
	if err != nil {
		return "", false
	}
	return p, true
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
