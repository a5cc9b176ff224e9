// Package reporter prepares debug report: single zip archive with everything needed to reproduce a problem.
package reporter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Report accumulates information necessary to prepare debug report.
type Report struct {
	// NOTE: not to be used concurrently!
	paths map[string]string
	data  map[string][]byte
	file  *os.File
}

// NewReporter creates initialized empty report in the current directory, or in temporary one if current
// directory is not writable.
func NewReporter() (*Report, error) {
	return newReporter("fb2thumb-report.zip")
}

func newReporter(name string) (*Report, error) {

	r := &Report{paths: make(map[string]string), data: make(map[string][]byte)}

	if f, err := os.Create(name); err == nil {
		r.file = f
	} else if f, err = os.CreateTemp("", "fb2thumb-report.*.zip"); err == nil {
		r.file = f
	} else {
		return nil, fmt.Errorf("unable to create report: %w", err)
	}
	return r, nil
}

// Close finalizes debug report.
func (r *Report) Close() error {

	if r == nil || r.file == nil {
		return nil
	}
	defer r.file.Close()

	return r.finalize()
}

// Name returns name of underlying file.
func (r *Report) Name() string {

	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store saves path to file or directory to be put in the final archive later.
func (r *Report) Store(name, path string) {

	if r == nil {
		// Ignore uninitialized cases to avoid checking in many places. This means no report has been requested.
		return
	}
	if old, exists := r.paths[name]; exists && old != path {
		panic(fmt.Sprintf("Attempt to overwrite file in the report for [%s]: was %s, now %s", name, old, path))
	}
	// Cleanup the path ignoring errors.
	if p, err := filepath.Abs(path); err == nil {
		r.paths[name] = p
	} else {
		r.paths[name] = path
	}
}

// StoreData saves content to be put in the final archive under name. Later calls replace earlier content.
func (r *Report) StoreData(name string, data []byte) {

	if r == nil {
		return
	}
	r.data[name] = bytes.Clone(data)
}

func (r *Report) finalize() error {

	arc := zip.NewWriter(r.file)
	defer arc.Close()

	t := time.Now()

	names, manifest := prepareManifest(r.paths, r.data)
	if err := saveFile(arc, "MANIFEST", t, manifest); err != nil {
		return err
	}

	// in the same order as in manifest
	for _, name := range names {
		if data, ok := r.data[name]; ok {
			if err := saveFile(arc, name, t, bytes.NewReader(data)); err != nil {
				return err
			}
			continue
		}
		path := r.paths[name]
		// ignoring absent files
		if info, err := os.Stat(path); err == nil {
			switch {
			case info.Mode().IsRegular():
				var r io.ReadCloser
				if r, err = os.Open(path); err != nil {
					return err
				}
				if err := saveFile(arc, name, info.ModTime(), r); err != nil {
					r.Close()
					return err
				}
				r.Close()
			case info.Mode().IsDir():
				if err := saveDir(arc, name, path); err != nil {
					return err
				}
			default:
			}
		}
	}
	return nil
}

func prepareManifest(paths map[string]string, data map[string][]byte) ([]string, *bytes.Buffer) {

	buf := new(bytes.Buffer)
	if len(paths) == 0 && len(data) == 0 {
		return nil, buf
	}

	keys := make([]string, 0, len(paths)+len(data))
	for k := range paths {
		if _, ok := data[k]; !ok {
			keys = append(keys, k)
		}
	}
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if p, ok := paths[k]; ok {
			fmt.Fprintf(buf, "%s\t%s\n", k, p)
		} else {
			fmt.Fprintf(buf, "%s\t<%d bytes>\n", k, len(data[k]))
		}
	}
	return keys, buf
}

func saveFile(dst *zip.Writer, name string, t time.Time, src io.Reader) error {

	w, err := dst.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func saveDir(dst *zip.Writer, name, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		// Get the path of the file relative to the source folder
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		// root entry under new name
		rel = filepath.ToSlash(filepath.Join(name, rel))

		r, err := os.Open(path)
		if err != nil {
			return err
		}
		defer r.Close()

		return saveFile(dst, rel, info.ModTime(), r)
	})
}
