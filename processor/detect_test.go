package processor

import (
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func TestIsBook(t *testing.T) {

	book := string(makeBook("#c", "c", "Zm9vYmFy"))
	utf16, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().String(book)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		fname string
		ok    bool
	}{
		{"plain", writeFile(t, "book.fb2", []byte(book)), true},
		{"upper case extension", writeFile(t, "BOOK.FB2", []byte(book)), true},
		{"utf-16", writeFile(t, "book.fb2", []byte(utf16)), true},
		{"leading spaces", writeFile(t, "book.fb2", []byte("\n\n  "+book)), true},
		{"wrong extension", writeFile(t, "book.xml", []byte(book)), false},
		{"not a book", writeFile(t, "book.fb2", []byte("<?xml version=\"1.0\"?><html/>")), false},
		{"empty", writeFile(t, "book.fb2", nil), false},
		{"archive", writeZip(t, "book.fb2.zip", "book.fb2", book), true},
		{"archive without extension", writeZip(t, "book.fb2", "book.fb2", book), false},
		{"archive with other entry first", writeZip(t, "book.zip", "readme.txt", "hello", "book.fb2", book), false},
		{"archive with not a book", writeZip(t, "book.zip", "book.fb2", "hello"), false},
		{"empty archive", writeZip(t, "book.zip"), false},
		{"not an archive", writeFile(t, "book.zip", []byte(book)), false},
	}

	for _, c := range cases {
		ok, err := IsBook(c.fname)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if ok != c.ok {
			t.Fatalf("%s: expected %t, got %t", c.name, c.ok, ok)
		}
	}

	if _, err := IsBook(filepath.Join(t.TempDir(), "missing.fb2")); err == nil {
		t.Fatal("missing file reported without error")
	}
}
