package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"fb2thumb/processor"
	"fb2thumb/state"
)

// Extract is "extract" command body. Cover is stored exactly as it is in the book.
func Extract(ctx *cli.Context) error {

	const (
		errPrefix = "extract: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	if len(ctx.Args().Get(0)) == 0 {
		return cli.Exit(errors.New(errPrefix+"book source has not been specified"), errCode)
	}
	src, err := inputPath(ctx.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Errorf("%swrong book source has been specified: %w", errPrefix, err), errCode)
	}

	cover, err := processor.Extract(src,
		processor.WithLogger(env.Log),
		processor.WithContentLimit(env.Cfg.Extract.MaxContentSize))
	if err != nil {
		env.Rpt.Store("book/"+filepath.Base(src), src)
		return cli.Exit(fmt.Errorf("%sunable to extract cover from %s: %w", errPrefix, src, err), errCode)
	}

	fname := ctx.Args().Get(1)
	if len(fname) == 0 {
		if _, err := os.Stdout.Write(cover.Data); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to write cover: %w", errPrefix, err), errCode)
		}
		return nil
	}

	if err := os.WriteFile(fname, cover.Data, 0644); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to write cover: %w", errPrefix, err), errCode)
	}
	env.Log.Info("Cover extracted",
		zap.String("file", fname),
		zap.String("id", cover.ID),
		zap.String("type", cover.MIME),
		zap.Int("size", len(cover.Data)))
	return nil
}
