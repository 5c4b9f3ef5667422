package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/promptinfra/internal/fsutil"
	"github.com/roach88/promptinfra/internal/ir"
)

// FileBackend stores each record as {dir}/{id}.json.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("ledger directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Name() string { return "file" }

// Path returns the document path for id.
func (b *FileBackend) Path(id string) string {
	return filepath.Join(b.dir, id+".json")
}

// Put writes rec as an indented JSON document, replacing any existing one.
func (b *FileBackend) Put(ctx context.Context, rec ir.DeploymentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFileID(rec.ID); err != nil {
		return err
	}
	data, err := EncodeDocument(rec)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(b.Path(rec.ID), data, 0o644)
}

// Get reads the document for id. A missing document, or an id that cannot
// name one, is not found.
func (b *FileBackend) Get(ctx context.Context, id string) (ir.DeploymentRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ir.DeploymentRecord{}, false, err
	}
	if checkFileID(id) != nil {
		return ir.DeploymentRecord{}, false, nil
	}
	data, err := os.ReadFile(b.Path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ir.DeploymentRecord{}, false, nil
	}
	if err != nil {
		return ir.DeploymentRecord{}, false, fmt.Errorf("reading %s: %w", b.Path(id), err)
	}
	rec, err := DecodeDocument(data)
	if err != nil {
		return ir.DeploymentRecord{}, false, fmt.Errorf("%s: %w", b.Path(id), err)
	}
	return rec, true, nil
}

// Scan lists the directory now and reads documents lazily. A document
// removed after the listing is skipped.
func (b *FileBackend) Scan(ctx context.Context) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", b.dir, err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(b.dir, name))
	}
	return &fileCursor{paths: paths}, nil
}

type fileCursor struct {
	paths []string
}

func (c *fileCursor) Next(ctx context.Context) (ir.DeploymentRecord, bool, error) {
	for len(c.paths) > 0 {
		if err := ctx.Err(); err != nil {
			return ir.DeploymentRecord{}, false, err
		}
		path := c.paths[0]
		c.paths = c.paths[1:]

		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return ir.DeploymentRecord{}, false, fmt.Errorf("reading %s: %w", path, err)
		}
		rec, err := DecodeDocument(data)
		if err != nil {
			return ir.DeploymentRecord{}, false, fmt.Errorf("%s: %w", path, err)
		}
		return rec, true, nil
	}
	return ir.DeploymentRecord{}, false, nil
}

func (c *fileCursor) Close() error {
	c.paths = nil
	return nil
}

// EncodeDocument renders rec in the ledger file format: two-space indented
// JSON with a trailing newline.
func EncodeDocument(rec ir.DeploymentRecord) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}
	return append(data, '\n'), nil
}

// DecodeDocument parses one ledger file document.
func DecodeDocument(data []byte) (ir.DeploymentRecord, error) {
	var rec ir.DeploymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ir.DeploymentRecord{}, fmt.Errorf("decoding record: %w", err)
	}
	if rec.ID == "" {
		return ir.DeploymentRecord{}, errors.New("decoding record: missing deployment_id")
	}
	return rec, nil
}

func checkFileID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: id %q is not a valid file name", ErrInvalidRecord, id)
	}
	return nil
}
