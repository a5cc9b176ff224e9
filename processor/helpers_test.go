package processor

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

const fb2Template = `<?xml version="1.0" encoding="utf-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0" xmlns:l="http://www.w3.org/1999/xlink">
<description>
<title-info>
<book-title>Test</book-title>
<coverpage><image l:href="%s"/></coverpage>
</title-info>
</description>
<body><section><p>Text</p></section></body>
<binary id="%s" content-type="image/jpeg">%s</binary>
</FictionBook>
`

// makeBook returns fb2 content with cover reference href and single binary.
func makeBook(href, id, data string) []byte {
	return fmt.Appendf(nil, fb2Template, href, id, data)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	fname := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(fname, data, 0644); err != nil {
		t.Fatal(err)
	}
	return fname
}

// writeZip creates archive with entries in given order, entries are name, content pairs.
func writeZip(t *testing.T, name string, entries ...string) string {
	t.Helper()

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for i := 0; i+1 < len(entries); i += 2 {
		f, err := w.Create(entries[i])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(entries[i+1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return writeFile(t, name, buf.Bytes())
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 200, 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
