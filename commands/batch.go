package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"fb2thumb/processor"
	"fb2thumb/state"
)

// how long book file should stay quiet before we touch it in watch mode
const settleDelay = 500 * time.Millisecond

type batch struct {
	env       *state.LocalEnv
	src, dst  string
	opts      processor.ThumbnailOptions
	names     *processor.NameTemplate
	overwrite bool
	// thumbnails produced during this run and their books
	made map[string]string
	// counters
	files, count int
}

// Batch is "batch" command body. It produces thumbnails for all books under source directory.
func Batch(ctx *cli.Context) error {

	const (
		errPrefix = "batch: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	if len(ctx.Args().Get(0)) == 0 {
		return cli.Exit(errors.New(errPrefix+"book source has not been specified"), errCode)
	}
	src, err := filepath.Abs(ctx.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Errorf("%swrong book source has been specified: %w", errPrefix, err), errCode)
	}
	if info, err := os.Stat(src); err != nil {
		return cli.Exit(fmt.Errorf("%swrong book source has been specified: %w", errPrefix, err), errCode)
	} else if !info.IsDir() {
		return cli.Exit(errors.New(errPrefix+"book source must be a directory"), errCode)
	}

	dst := ctx.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to get working directory: %w", errPrefix, err), errCode)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return cli.Exit(fmt.Errorf("%swrong destination has been specified: %w", errPrefix, err), errCode)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to create destination directory: %w", errPrefix, err), errCode)
	}

	b := &batch{
		env:       env,
		src:       src,
		dst:       dst,
		overwrite: ctx.Bool("ow") || env.Cfg.Batch.Overwrite,
		made:      make(map[string]string),
	}
	if b.opts, err = thumbnailOptions(env, ctx.Int("size")); err != nil {
		return cli.Exit(fmt.Errorf("%s%w", errPrefix, err), errCode)
	}
	if b.names, err = processor.NewNameTemplate(env.Cfg.Batch.NameTemplate); err != nil {
		return cli.Exit(fmt.Errorf("%s%w", errPrefix, err), errCode)
	}

	env.Log.Info("Thumbnail extraction starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		env.Log.Info("Thumbnail extraction completed", zap.Duration("elapsed", time.Since(start)), zap.Int("files", b.files), zap.Int("extracted", b.count))
	}(time.Now())

	if !ctx.Bool("watch") {
		if err := b.walk(b.src, nil); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to process books: %w", errPrefix, err), errCode)
		}
		return nil
	}

	sctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.watch(sctx); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to watch books: %w", errPrefix, err), errCode)
	}
	return nil
}

// walk processes every book under root directory, symbolic links are not followed. If watcher is not nil
// all directories are added to it.
func (b *batch) walk(root string, w *fsnotify.Watcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if path == b.dst && path != b.src {
				return filepath.SkipDir
			}
			if w != nil {
				if err := w.Add(path); err != nil {
					return fmt.Errorf("unable to watch %s: %w", path, err)
				}
			}
		case d.Type().IsRegular():
			b.process(path)
		}
		return nil
	})
}

// process makes thumbnail for a single file if it is a book. Failures are logged, they never stop processing.
func (b *batch) process(path string) {

	ok, err := processor.IsBook(path)
	if err != nil {
		b.env.Log.Warn("Unable to detect file type", zap.String("file", path), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	b.files++

	// cover id could be part of thumbnail name, so cover goes first
	cover, err := processor.Extract(path, processor.WithLogger(b.env.Log), processor.WithContentLimit(b.env.Cfg.Extract.MaxContentSize))
	if err != nil {
		b.fail(path, err)
		return
	}

	name, err := b.names.Expand(processor.NewNameValues(path, b.opts.Format.Ext(), cover.ID))
	if err != nil {
		b.env.Log.Error("Unable to name thumbnail", zap.String("file", path), zap.Error(err))
		return
	}
	out := filepath.Join(b.dst, name)

	if prev, ok := b.made[out]; ok && prev != path {
		b.env.Log.Warn("Thumbnail name is already taken, skipping", zap.String("file", path), zap.String("thumbnail", out), zap.String("taken by", prev))
		return
	}

	if !b.overwrite {
		if oi, err := os.Stat(out); err == nil {
			if bi, err := os.Stat(path); err == nil && !bi.ModTime().After(oi.ModTime()) {
				b.env.Log.Debug("Thumbnail is up to date", zap.String("file", path), zap.String("thumbnail", out))
				b.made[out] = path
				return
			}
		}
	}

	b.env.Log.Debug("Creating thumbnail", zap.String("file", path), zap.String("thumbnail", out))
	if err := processor.SaveThumbnail(cover, out, b.opts, b.env.Log); err != nil {
		b.fail(path, err)
		return
	}
	b.made[out] = path
	b.count++
}

func (b *batch) fail(path string, err error) {
	b.env.Log.Warn("Unable to create thumbnail", zap.String("file", path), zap.Error(err))
	if rel, err := filepath.Rel(b.src, path); err == nil {
		b.env.Rpt.Store("book/"+filepath.ToSlash(rel), path)
	}
}

// watch processes all books and then keeps thumbnails up to date until context is canceled.
func (b *batch) watch(ctx context.Context) error {

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := b.walk(b.src, w); err != nil {
		return err
	}
	b.env.Log.Info("Watching for changes", zap.String("source", b.src))

	pending := make(map[string]struct{})
	timer := time.NewTimer(settleDelay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			info, err := os.Lstat(ev.Name)
			if err != nil {
				// already gone
				continue
			}
			if info.IsDir() {
				// books may have arrived together with directory
				if err := b.walk(ev.Name, w); err != nil {
					b.env.Log.Warn("Unable to watch directory", zap.String("dir", ev.Name), zap.Error(err))
				}
				continue
			}
			if info.Mode().IsRegular() {
				pending[ev.Name] = struct{}{}
				timer.Reset(settleDelay)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.env.Log.Warn("Watcher reported error", zap.Error(err))

		case <-timer.C:
			for path := range pending {
				b.process(path)
			}
			clear(pending)
		}
	}
}
