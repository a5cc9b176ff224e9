package reporter

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReport(t *testing.T) {

	dir := t.TempDir()

	book := filepath.Join(dir, "book.fb2")
	if err := os.WriteFile(book, []byte("<FictionBook/>"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "logs")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.log"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := newReporter(filepath.Join(dir, "report.zip"))
	if err != nil {
		t.Fatal(err)
	}
	r.Store("book/book.fb2", book)
	r.Store("book/book.fb2", book)
	r.Store("logs", sub)
	r.Store("missing", filepath.Join(dir, "missing"))
	r.StoreData("config/actual.json", []byte("{}"))
	r.StoreData("config/actual.json", []byte(`{"a": 1}`))

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.Name() != filepath.Join(dir, "report.zip") {
		t.Fatalf("unexpected report name %s", r.Name())
	}

	arc, err := zip.OpenReader(r.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer arc.Close()

	content := make(map[string]string)
	for _, f := range arc.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		content[f.Name] = string(data)
	}

	expected := map[string]string{
		"book/book.fb2":      "<FictionBook/>",
		"logs/a.log":         "a",
		"config/actual.json": `{"a": 1}`,
	}
	for k, v := range expected {
		if content[k] != v {
			t.Fatalf("entry %s: expected %q, got %q", k, v, content[k])
		}
	}
	if _, ok := content["missing"]; ok {
		t.Fatal("absent file was stored")
	}

	manifest := content["MANIFEST"]
	for _, s := range []string{"book/book.fb2\t" + book, "config/actual.json\t<8 bytes>", "missing\t"} {
		if !strings.Contains(manifest, s) {
			t.Fatalf("manifest does not have %q:\n%s", s, manifest)
		}
	}
}

func TestNilReport(t *testing.T) {

	var r *Report
	r.Store("a", "b")
	r.StoreData("a", nil)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.Name() != "" {
		t.Fatal("nil report has name")
	}
}

func TestOverwrite(t *testing.T) {

	r, err := newReporter(filepath.Join(t.TempDir(), "report.zip"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("overwrite was not detected")
		}
	}()
	r.Store("a", "/one")
	r.Store("a", "/two")
}
