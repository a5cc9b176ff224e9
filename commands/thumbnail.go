package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"fb2thumb/processor"
	"fb2thumb/state"
)

// Thumbnail is "thumbnail" command body. It is what desktop thumbnailing service calls for every book.
func Thumbnail(ctx *cli.Context) error {

	const (
		errPrefix = "thumbnail: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	if len(ctx.Args().Get(0)) == 0 {
		return cli.Exit(errors.New(errPrefix+"book source has not been specified"), errCode)
	}
	if len(ctx.Args().Get(1)) == 0 {
		return cli.Exit(errors.New(errPrefix+"thumbnail destination has not been specified"), errCode)
	}

	src, err := inputPath(ctx.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Errorf("%swrong book source has been specified: %w", errPrefix, err), errCode)
	}
	dst, err := filepath.Abs(ctx.Args().Get(1))
	if err != nil {
		return cli.Exit(fmt.Errorf("%swrong destination has been specified: %w", errPrefix, err), errCode)
	}

	opts, err := thumbnailOptions(env, ctx.Int("size"))
	if err != nil {
		return cli.Exit(fmt.Errorf("%s%w", errPrefix, err), errCode)
	}

	env.Log.Debug("Thumbnail - start", zap.String("source", src), zap.String("destination", dst), zap.Int("size", opts.Size))
	defer func(start time.Time) {
		env.Log.Debug("Thumbnail - done", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	if _, err := processor.ProduceThumbnail(src, dst, opts, env.Cfg.Extract.MaxContentSize, env.Log); err != nil {
		env.Rpt.Store("book/"+filepath.Base(src), src)
		return cli.Exit(fmt.Errorf("%sunable to produce thumbnail for %s: %w", errPrefix, src, err), errCode)
	}
	return nil
}
