// Package storage keeps uploaded files on local disk until a worker has
// ingested them.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type StoredFile struct {
	OriginalName string
	Filename     string
	Destination  string
	Path         string
	Size         int64
	// SHA256 of the content, hex encoded.
	Hash string
}

// PublicPath is the path clients see for the file.
func (f *StoredFile) PublicPath() string {
	return "/uploads/" + f.Filename
}

type Store interface {
	Save(ctx context.Context, originalName string, r io.Reader) (*StoredFile, error)
}

type Disk struct {
	dir string
	now func() time.Time
}

func NewDisk(dir string) (*Disk, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Disk{dir: abs, now: time.Now}, nil
}

func (d *Disk) Dir() string {
	return d.dir
}

// Save writes r under a <unix-millis>.<ext> name. A name collision within the
// same millisecond gets a numeric suffix.
func (d *Disk) Save(ctx context.Context, originalName string, r io.Reader) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	stamp := d.now().UnixMilli()

	var (
		f    *os.File
		name string
		err  error
	)
	for i := 0; i < 100; i++ {
		name = fmt.Sprintf("%d%s", stamp, ext)
		if i > 0 {
			name = fmt.Sprintf("%d-%d%s", stamp, i, ext)
		}
		f, err = os.OpenFile(filepath.Join(d.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 -- name is generated, not user input
		if err == nil || !os.IsExist(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	path := f.Name()
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), &ctxReader{ctx: ctx, r: r})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &StoredFile{
		OriginalName: originalName,
		Filename:     name,
		Destination:  d.dir,
		Path:         path,
		Size:         n,
		Hash:         hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (d *Disk) Remove(f *StoredFile) error {
	return os.Remove(f.Path)
}

// HashFile returns the hex SHA256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from our own upload store
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

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
