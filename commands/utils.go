package commands

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"fb2thumb/processor"
	"fb2thumb/state"
)

// thumbnailOptions translates configuration to processor parameters, size overwrites configured one if positive.
func thumbnailOptions(env *state.LocalEnv, size int) (processor.ThumbnailOptions, error) {

	format := processor.ParseThumbnailFormatString(env.Cfg.Thumbnail.Format)
	if format == processor.UnsupportedThumbnailFormat {
		return processor.ThumbnailOptions{}, fmt.Errorf("unknown thumbnail format %q", env.Cfg.Thumbnail.Format)
	}
	if size <= 0 {
		size = env.Cfg.Thumbnail.Size
	}
	return processor.ThumbnailOptions{
		Size:        size,
		Format:      format,
		JpegQuality: env.Cfg.Thumbnail.JpegQuality,
		Filter:      env.Cfg.Thumbnail.Filter,
		Upscale:     env.Cfg.Thumbnail.Upscale,
	}, nil
}

// inputPath accepts both local paths and file:// URIs, thumbnailers could be called either way.
func inputPath(arg string) (string, error) {

	if strings.HasPrefix(arg, "file://") {
		u, err := url.Parse(arg)
		if err != nil {
			return "", fmt.Errorf("bad file URI %s: %w", arg, err)
		}
		arg = filepath.FromSlash(u.Path)
	}
	return filepath.Abs(arg)
}
