package processor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"fb2thumb/jpegquality"
)

type thumbCase struct {
	w, h    int
	opts    ThumbnailOptions
	expW    int
	expH    int
	expType string
}

var casesThumb = []thumbCase{
	{w: 400, h: 200, opts: ThumbnailOptions{Size: 100}, expW: 100, expH: 50, expType: "png"},
	{w: 200, h: 400, opts: ThumbnailOptions{Size: 100, Filter: "box"}, expW: 50, expH: 100, expType: "png"},
	{w: 60, h: 30, opts: ThumbnailOptions{Size: 100}, expW: 60, expH: 30, expType: "png"},
	{w: 60, h: 30, opts: ThumbnailOptions{Size: 120, Upscale: true}, expW: 120, expH: 60, expType: "png"},
	{w: 30, h: 60, opts: ThumbnailOptions{Size: 120, Upscale: true, Filter: "nearest"}, expW: 60, expH: 120, expType: "png"},
	{w: 100, h: 50, opts: ThumbnailOptions{Size: 100, Upscale: true}, expW: 100, expH: 50, expType: "png"},
	{w: 400, h: 400, opts: ThumbnailOptions{Size: 128, Format: ThumbJPEG}, expW: 128, expH: 128, expType: "jpeg"},
	{w: 400, h: 300, opts: ThumbnailOptions{Size: 200, Format: ThumbJPEG, JpegQuality: 60, Filter: "unknown"}, expW: 200, expH: 150, expType: "jpeg"},
}

func TestMakeThumbnail(t *testing.T) {

	log := zaptest.NewLogger(t)

	for i, c := range casesThumb {
		data, err := MakeThumbnail(makePNG(t, c.w, c.h), c.opts, log)
		if err != nil {
			t.Fatalf("case %d: %v", i+1, err)
		}
		cfg, typ, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("case %d: thumbnail is not an image: %v", i+1, err)
		}
		if typ != c.expType || cfg.Width != c.expW || cfg.Height != c.expH {
			t.Fatalf("case %d: expected %s %dx%d, got %s %dx%d", i+1, c.expType, c.expW, c.expH, typ, cfg.Width, cfg.Height)
		}
	}
}

func TestMakeThumbnailQuality(t *testing.T) {

	src := image.NewRGBA(image.Rect(0, 0, 300, 300))
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, src, &jpeg.Options{Quality: 50}); err != nil {
		t.Fatal(err)
	}

	data, err := MakeThumbnail(buf.Bytes(), ThumbnailOptions{Size: 100, Format: ThumbJPEG}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	q, err := jpegquality.NewWithBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if v := q.Quality(); v < 48 || v > 52 {
		t.Fatalf("source quality was not kept, got %d", v)
	}
}

func TestMakeThumbnailErrors(t *testing.T) {

	log := zap.NewNop()

	if _, err := MakeThumbnail(makePNG(t, 10, 10), ThumbnailOptions{Size: 0}, log); err == nil {
		t.Fatal("zero size accepted")
	}
	if _, err := MakeThumbnail([]byte("foobar"), ThumbnailOptions{Size: 10}, log); err == nil {
		t.Fatal("not an image accepted")
	}
	if _, err := MakeThumbnail(makePNG(t, 10, 10), ThumbnailOptions{Size: 10, Format: UnsupportedThumbnailFormat}, log); err == nil {
		t.Fatal("unsupported format accepted")
	}
}

func TestProduceThumbnail(t *testing.T) {

	log := zaptest.NewLogger(t)
	opts := ThumbnailOptions{Size: 32}

	img := makePNG(t, 64, 48)
	book := writeZip(t, "book.fb2.zip", "book.fb2", string(makeBook("#cover", "cover", base64.StdEncoding.EncodeToString(img))))
	out := filepath.Join(t.TempDir(), "thumb.png")

	cover, err := ProduceThumbnail(book, out, opts, 0, log)
	if err != nil {
		t.Fatal(err)
	}
	if cover.ID != "cover" || cover.MIME != "image/png" {
		t.Fatalf("unexpected cover %s/%s", cover.ID, cover.MIME)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := imageConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 32 || cfg.Height != 24 {
		t.Fatalf("expected 32x24, got %dx%d", cfg.Width, cfg.Height)
	}

	// temporary files do not stay around
	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected single file in output directory, got %d", len(entries))
	}
}

func TestProduceThumbnailFailure(t *testing.T) {

	log := zaptest.NewLogger(t)
	opts := ThumbnailOptions{Size: 32}
	dir := t.TempDir()

	for i, book := range []string{
		writeFile(t, "book.fb2", makeBook("cover.jpg", "cover.jpg", "Zm9vYmFy")),
		writeFile(t, "book.fb2", makeBook("#cover.jpg", "cover.jpg", "Zm9vYmFy")),
		filepath.Join(dir, "missing.fb2"),
	} {
		out := filepath.Join(dir, "thumb.png")
		if _, err := ProduceThumbnail(book, out, opts, 0, log); err == nil {
			t.Fatalf("case %d: expected failure", i+1)
		}
		if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("case %d: thumbnail must not be created, stat: %v", i+1, err)
		}
	}
}

func TestParseThumbnailFormat(t *testing.T) {

	for s, f := range map[string]ThumbnailFormat{
		"":     ThumbPNG,
		"PNG":  ThumbPNG,
		"jpeg": ThumbJPEG,
		"JPG":  ThumbJPEG,
		"gif":  UnsupportedThumbnailFormat,
	} {
		if got := ParseThumbnailFormatString(s); got != f {
			t.Fatalf("%q: expected %d, got %d", s, f, got)
		}
	}
	if ThumbJPEG.Ext() != "jpg" || ThumbPNG.Ext() != "png" {
		t.Fatal("wrong extensions")
	}
	if !IsResampleFilter("Lanczos") || IsResampleFilter("bicubic") {
		t.Fatal("wrong filter detection")
	}
}

func imageConfig(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	return cfg, err
}

func TestSaveThumbnail(t *testing.T) {

	log := zaptest.NewLogger(t)
	dir := t.TempDir()

	out := filepath.Join(dir, "thumb.jpg")
	if err := SaveThumbnail(&Cover{Data: makePNG(t, 40, 20)}, out, ThumbnailOptions{Size: 10, Format: ThumbJPEG}, log); err != nil {
		t.Fatal(err)
	}
	if data, err := os.ReadFile(out); err != nil {
		t.Fatal(err)
	} else if cfg, err := imageConfig(data); err != nil || cfg.Width != 10 || cfg.Height != 5 {
		t.Fatalf("unexpected thumbnail %+v: %v", cfg, err)
	}

	out = filepath.Join(dir, "broken.png")
	if err := SaveThumbnail(&Cover{Data: []byte("foobar")}, out, ThumbnailOptions{Size: 10}, log); err == nil {
		t.Fatal("broken image accepted")
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("thumbnail must not be created, stat: %v", err)
	}
}
