package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	// additional supported image formats
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"fb2thumb/jpegquality"
)

// ThumbnailFormat is output image format.
type ThumbnailFormat int

// Supported formats
const (
	ThumbPNG ThumbnailFormat = iota
	ThumbJPEG
	UnsupportedThumbnailFormat
)

// ParseThumbnailFormatString converts configuration value to format.
func ParseThumbnailFormatString(s string) ThumbnailFormat {
	switch strings.ToLower(s) {
	case "", "png":
		return ThumbPNG
	case "jpeg", "jpg":
		return ThumbJPEG
	}
	return UnsupportedThumbnailFormat
}

// Ext returns file extension for format without dot.
func (f ThumbnailFormat) Ext() string {
	if f == ThumbJPEG {
		return "jpg"
	}
	return "png"
}

const defaultJpegQuality = 85

var resampleFilters = map[string]imaging.ResampleFilter{
	"nearest":  imaging.NearestNeighbor,
	"box":      imaging.Box,
	"linear":   imaging.Linear,
	"catmull":  imaging.CatmullRom,
	"lanczos":  imaging.Lanczos,
	"gaussian": imaging.Gaussian,
}

// IsResampleFilter checks if name could be used as ThumbnailOptions.Filter.
func IsResampleFilter(name string) bool {
	_, ok := resampleFilters[strings.ToLower(name)]
	return ok
}

// ThumbnailOptions defines how thumbnail is produced.
type ThumbnailOptions struct {
	// Size of the box thumbnail must fit in.
	Size   int
	Format ThumbnailFormat
	// JpegQuality 0 means keep quality of the source if it was jpeg.
	JpegQuality int
	Filter      string
	// Upscale small images to fill the box.
	Upscale bool
}

// MakeThumbnail decodes cover image and produces thumbnail fitting into options box.
func MakeThumbnail(data []byte, opts ThumbnailOptions, log *zap.Logger) ([]byte, error) {

	if opts.Size <= 0 {
		return nil, fmt.Errorf("bad thumbnail size %d", opts.Size)
	}

	img, imgType, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to decode cover image: %w", err)
	}

	filter, ok := resampleFilters[strings.ToLower(opts.Filter)]
	if !ok {
		filter = imaging.Lanczos
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	resized := true
	switch {
	case w > opts.Size || h > opts.Size:
		img = imaging.Fit(img, opts.Size, opts.Size, filter)
	case opts.Upscale && w < opts.Size && h < opts.Size:
		// Fit never enlarges
		if w >= h {
			img = imaging.Resize(img, opts.Size, 0, filter)
		} else {
			img = imaging.Resize(img, 0, opts.Size, filter)
		}
	default:
		resized = false
	}
	if resized {
		log.Debug("Resized cover",
			zap.String("type", imgType),
			zap.Int("width", w), zap.Int("height", h),
			zap.Int("new width", img.Bounds().Dx()), zap.Int("new height", img.Bounds().Dy()))
	}

	buf := new(bytes.Buffer)
	switch opts.Format {
	case ThumbPNG:
		if err := imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
			return nil, fmt.Errorf("unable to encode thumbnail: %w", err)
		}
	case ThumbJPEG:
		q := opts.JpegQuality
		if q <= 0 || q > 100 {
			q = sourceQuality(data, imgType, log)
		}
		if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, fmt.Errorf("unable to encode thumbnail: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported thumbnail format %d", opts.Format)
	}
	return buf.Bytes(), nil
}

func sourceQuality(data []byte, imgType string, log *zap.Logger) int {
	if imgType != "jpeg" {
		return defaultJpegQuality
	}
	q, err := jpegquality.NewWithBytes(data)
	if err != nil {
		log.Debug("Unable to estimate jpeg quality", zap.Error(err))
		return defaultJpegQuality
	}
	if v := q.Quality(); v > 0 && v <= 100 {
		return v
	}
	return defaultJpegQuality
}

// ProduceThumbnail reads book, extracts its cover and stores thumbnail to outname. Output file is either
// complete or absent.
func ProduceThumbnail(fname, outname string, opts ThumbnailOptions, limit int64, log *zap.Logger) (cover *Cover, err error) {

	defer recoverThumbnail(fname, log, &err)

	if cover, err = Extract(fname, WithLogger(log), WithContentLimit(limit)); err != nil {
		return nil, err
	}
	if err = SaveThumbnail(cover, outname, opts, log); err != nil {
		return nil, err
	}
	return cover, nil
}

// SaveThumbnail renders already extracted cover and stores thumbnail to outname. Output file is either
// complete or absent.
func SaveThumbnail(cover *Cover, outname string, opts ThumbnailOptions, log *zap.Logger) (err error) {

	defer recoverThumbnail(outname, log, &err)

	data, err := MakeThumbnail(cover.Data, opts, log)
	if err != nil {
		return err
	}
	return writeFileAtomic(outname, data)
}

// recoverThumbnail turns panic into error, image decoders may choke on broken data.
func recoverThumbnail(name string, log *zap.Logger, err *error) {
	if r := recover(); r != nil {
		log.Debug("Thumbnail creation ended with panic", zap.String("file", name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		*err = fmt.Errorf("thumbnail creation ended with panic: %v", r)
	}
}

func writeFileAtomic(fname string, data []byte) error {

	f, err := os.CreateTemp(filepath.Dir(fname), ".fb2thumb-*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after successful rename

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("unable to write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to write %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return fmt.Errorf("unable to set permissions on %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, fname); err != nil {
		return fmt.Errorf("unable to save %s: %w", fname, err)
	}
	return nil
}
