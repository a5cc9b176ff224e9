package processor

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"
)

// DefaultNameTemplate produces names used by freedesktop thumbnail cache.
const DefaultNameTemplate = `{{ .Hash }}.{{ .Ext }}`

// NameValues is a struct that holds variables we make available for output name expansion.
type NameValues struct {
	// Name of the book file
	Name string
	// Base is Name without .fb2 and .zip extensions
	Base string
	Dir  string
	// Hash is md5 of the book file URI
	Hash string
	// Ext of the output file
	Ext string
	// ID of the cover binary
	ID string
}

// NewNameValues prepares template values for book at path (which must be absolute).
func NewNameValues(path, ext, id string) NameValues {

	name := filepath.Base(path)
	base := name
	for _, e := range []string{".zip", ".fb2"} {
		if strings.EqualFold(filepath.Ext(base), e) {
			base = base[:len(base)-len(e)]
		}
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	sum := md5.Sum([]byte(u.String()))

	return NameValues{
		Name: name,
		Base: base,
		Dir:  filepath.Dir(path),
		Hash: hex.EncodeToString(sum[:]),
		Ext:  ext,
		ID:   id,
	}
}

// NameTemplate expands output file names.
type NameTemplate struct {
	tmpl *template.Template
}

// NewNameTemplate parses output name template.
func NewNameTemplate(field string) (*NameTemplate, error) {

	if len(strings.TrimSpace(field)) == 0 {
		field = DefaultNameTemplate
	}

	funcMap := sprig.FuncMap()
	funcMap["slug"] = slug.Make

	tmpl, err := template.New("name").Funcs(funcMap).Parse(field)
	if err != nil {
		return nil, fmt.Errorf("unable to parse name template: %w", err)
	}
	return &NameTemplate{tmpl: tmpl}, nil
}

// Expand returns file name for values. Result never contains path separators.
func (t *NameTemplate) Expand(values NameValues) (string, error) {

	buf := new(bytes.Buffer)
	if err := t.tmpl.Execute(buf, values); err != nil {
		return "", fmt.Errorf("unable to expand name template: %w", err)
	}
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, strings.TrimSpace(buf.String()))
	if len(name) == 0 || name == "." || name == ".." {
		return "", fmt.Errorf("name template produced bad file name %q", name)
	}
	return name, nil
}
