package processor

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/hidez8891/zip"
)

const headerSize = 512

// IsArchiveFile detects if file is zip archive with fb2 file as a first entry.
func IsArchiveFile(fname string) (bool, error) {

	if !strings.EqualFold(filepath.Ext(fname), ".zip") {
		return false, nil
	}

	file, err := os.Open(fname)
	if err != nil {
		return false, err
	}
	defer file.Close()

	header := make([]byte, 262)
	count, err := io.ReadFull(file, header)
	switch {
	case err == io.EOF:
		return false, nil
	case err != nil && err != io.ErrUnexpectedEOF:
		return false, err
	case !filetype.Is(header[:count], "zip"):
		return false, nil
	}

	r, err := zip.OpenReader(fname)
	if err != nil {
		return false, nil
	}
	defer r.Close()

	if len(r.File) == 0 || !strings.EqualFold(filepath.Ext(r.File[0].Name), ".fb2") {
		return false, nil
	}
	rc, err := r.File[0].Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()

	return isBookHeader(rc)
}

// IsBookFile detects if file is fb2 file.
func IsBookFile(fname string) (bool, error) {

	if !strings.EqualFold(filepath.Ext(fname), ".fb2") {
		return false, nil
	}

	file, err := os.Open(fname)
	if err != nil {
		return false, err
	}
	defer file.Close()

	return isBookHeader(file)
}

// IsBook detects if file is something we could extract cover from.
func IsBook(fname string) (bool, error) {
	if ok, err := IsBookFile(fname); ok || err != nil {
		return ok, err
	}
	return IsArchiveFile(fname)
}

func isBookHeader(r io.Reader) (bool, error) {

	raw := make([]byte, headerSize)
	n, err := io.ReadFull(r, raw)
	switch {
	case err == io.EOF:
		return false, nil
	case err != nil && err != io.ErrUnexpectedEOF:
		return false, err
	}
	raw = raw[:n]

	// header may end in the middle of multi-byte sequence, whatever was decoded is enough
	header, _ := io.ReadAll(selectReader(bytes.NewReader(raw), detectUTF(raw)))
	return filetype.Is(header, "fb2"), nil
}

func init() {
	// Register FB2 matcher for filetype
	filetype.AddMatcher(
		filetype.NewType("fb2", "application/x-fictionbook+xml"),
		func(buf []byte) bool {
			text := strings.TrimSpace(string(buf))
			return strings.HasPrefix(text, `<?xml`) && strings.Contains(text, `<FictionBook`)
		})
}
