package processor

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hidez8891/zip"
	"go.uber.org/zap"
)

// DefaultContentLimit is the largest book content we agree to load in memory.
const DefaultContentLimit int64 = 256 * 1024 * 1024

var errNoContent = errors.New("no content")

// LoadContent returns XML content of the book. It expects either zip archive with book as a first entry
// or plain fb2 file. Archive is always tried first.
func LoadContent(path string, limit int64, log *zap.Logger) ([]byte, error) {

	if limit <= 0 {
		limit = DefaultContentLimit
	}

	buf, err := loadZipped(path, limit)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, errNoContent):
		// archive is fine, there is just nothing in it
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	log.Debug("Not an archive, reading as plain file", zap.String("file", path), zap.Error(err))

	if buf, err = loadRaw(path, limit); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return buf, nil
}

func loadZipped(path string, limit int64) ([]byte, error) {

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if len(r.File) == 0 {
		return nil, fmt.Errorf("archive is empty: %w", errNoContent)
	}

	// only the first entry matters
	f := r.File[0]
	size := f.UncompressedSize64
	if size == 0 {
		return nil, fmt.Errorf("archive entry %s is empty: %w", f.Name, errNoContent)
	}
	if size > uint64(limit) {
		return nil, fmt.Errorf("archive entry %s too large: %d bytes (max %d)", f.Name, size, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	buf := make([]byte, size)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, fmt.Errorf("unable to read archive entry %s: %w", f.Name, err)
	}
	return buf, nil
}

func loadRaw(path string, limit int64) ([]byte, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("unable to get size of %s: %w", path, err)
	}
	switch {
	case size == 0:
		return nil, fmt.Errorf("file %s is empty", path)
	case size > limit:
		return nil, fmt.Errorf("file %s too large: %d bytes (max %d)", path, size, limit)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("unable to rewind %s: %w", path, err)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		// short read means file changed under us, do not return partial content
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return buf, nil
}
