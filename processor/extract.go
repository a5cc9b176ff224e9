// Package processor extracts cover images from FictionBook documents.
package processor

import (
	"time"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// Cover is decoded cover image with what we know about it.
type Cover struct {
	ID string
	// ContentType as declared in the book, could be empty or wrong.
	ContentType string
	// MIME is detected from image data, empty if we do not recognize it.
	MIME string
	Data []byte
}

type options struct {
	log   *zap.Logger
	limit int64
}

// Option changes Extract behavior.
type Option func(*options)

// WithLogger sets logger for pipeline diagnostics. By default nothing is logged.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithContentLimit sets maximum size of book content to be loaded.
func WithContentLimit(limit int64) Option {
	return func(o *options) {
		o.limit = limit
	}
}

// Extract reads book at path and returns its cover. Nothing is shared between calls, so it is safe to
// call concurrently.
func Extract(path string, opts ...Option) (*Cover, error) {

	o := options{log: zap.NewNop(), limit: DefaultContentLimit}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With(zap.String("file", path))

	start := time.Now()
	log.Debug("Cover extraction - start")

	buf, err := LoadContent(path, o.limit, log)
	if err != nil {
		log.Warn("Unable to load book", zap.Error(err))
		return nil, err
	}

	doc, err := ParseContent(buf)
	if err != nil {
		log.Warn("Book not parsed successfully", zap.Error(err))
		return nil, err
	}

	el, err := ResolveCover(doc)
	if err != nil {
		log.Warn("Unable to locate cover", zap.Error(err))
		return nil, err
	}

	data, err := DecodeBinary(el)
	if err != nil {
		log.Warn("Unable to decode cover", zap.Error(err))
		return nil, err
	}

	cover := &Cover{
		ID:          getAttrValue(el, "id"),
		ContentType: getAttrValue(el, "content-type"),
		Data:        data,
	}
	if kind, err := filetype.Image(data); err == nil && kind != filetype.Unknown {
		cover.MIME = kind.MIME.Value
	}

	log.Debug("Cover extraction - done",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("id", cover.ID),
		zap.String("declared", cover.ContentType),
		zap.String("detected", cover.MIME),
		zap.Int("size", len(cover.Data)))

	return cover, nil
}
