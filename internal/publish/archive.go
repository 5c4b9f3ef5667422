package publish

import (
	"archive/tar"
	"bytes"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ArchiveEntry is the single file name inside a publish archive.
const ArchiveEntry = "main.tf"

// BuildArchive returns a gzip'd tar holding text as main.tf. modTime is
// stamped on the entry so archives of the same text are reproducible.
func BuildArchive(text string, modTime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	hdr := &tar.Header{
		Name:    ArchiveEntry,
		Mode:    0o644,
		Size:    int64(len(text)),
		ModTime: modTime.UTC().Truncate(time.Second),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := tw.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("writing tar entry: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip: %w", err)
	}
	return buf.Bytes(), nil
}
