package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"fb2thumb/commands"
	"fb2thumb/config"
	"fb2thumb/reporter"
	"fb2thumb/state"
)

// set by linker
var (
	version = "dev"
	gitHash = "unknown"
)

var (
	profileFlags = []string{"cpuprofile", "memprofile", "blkprofile", "traceprofile", "mutexprofile"}
	profileModes = map[string]func(*profile.Profile){
		"cpuprofile":   profile.CPUProfile,
		"memprofile":   profile.MemProfile,
		"blkprofile":   profile.BlockProfile,
		"traceprofile": profile.TraceProfile,
		"mutexprofile": profile.MutexProfile,
	}
)

// requestedProfile returns name of profile flag which was set and its value. Setting more than one is an error.
func requestedProfile(value func(name string) string) (name, path string, err error) {
	for _, f := range profileFlags {
		v := value(f)
		if len(v) == 0 {
			continue
		}
		if len(name) > 0 {
			return "", "", fmt.Errorf("only one profile could be requested at a time: %s and %s", name, f)
		}
		name, path = f, v
	}
	return name, path, nil
}

type appWrapper struct {
	log           *zap.Logger
	rpt           *reporter.Report
	stdlogRestore func()
	prof          interface{ Stop() }
	inCommand     bool
}

func (w *appWrapper) beforeAppRun(c *cli.Context) error {

	if c.NArg() == 0 {
		return nil
	}

	const (
		errPrefix = "\n*** ERROR ***\n\npreparing: "
		errCode   = 1
	)
	var err error

	// Process global options

	env := c.Generic(state.FlagName).(*state.LocalEnv)
	env.Debug = c.Bool("debug")

	// Prepare configuration
	fconfig := c.StringSlice("config")
	if env.Cfg, err = config.BuildConfig(fconfig...); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to build configuration: %w", errPrefix, err), errCode)
	}

	if c.Bool("report") {
		if env.Rpt, err = reporter.NewReporter(); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to create report: %w", errPrefix, err), errCode)
		}
		w.rpt = env.Rpt
		for i, f := range fconfig {
			if f != "-" {
				env.Rpt.Store(fmt.Sprintf("config/%d-%s", i, f), f)
			}
		}
		if data, err := env.Cfg.GetActualBytes(); err == nil {
			env.Rpt.StoreData("config/actual.json", data)
		}
	}

	// We may want to do some profiling
	name, p, err := requestedProfile(c.String)
	if err != nil {
		return cli.Exit(fmt.Errorf("%s%w", errPrefix, err), errCode)
	}
	if len(name) > 0 {
		w.prof = profile.Start(profileModes[name], profile.ProfilePath(p))
	}

	return nil
}

func (w *appWrapper) beforeCommandRun(c *cli.Context) error {

	const (
		errPrefix = "\n*** ERROR ***\n\npreparing: "
		errCode   = 1
	)
	var err error

	env := c.Generic(state.FlagName).(*state.LocalEnv)

	if env.Cfg == nil {
		// no arguments were given to the application, use defaults
		if env.Cfg, err = config.BuildConfig(); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to build configuration: %w", errPrefix, err), errCode)
		}
	}

	// cover goes to stdout - keep it clean
	if c.Command.Name == "extract" && len(c.Args().Get(1)) == 0 {
		env.Cfg.ConsoleLogger.Destination = "stderr"
	}
	if env.Debug {
		env.Cfg.ConsoleLogger.Level = "debug"
	}

	// Prepare logs
	env.Log, err = env.Cfg.PrepareLog(env.Rpt)
	if err != nil {
		return cli.Exit(fmt.Errorf("%sunable to create logs: %w", errPrefix, err), errCode)
	}

	w.log = env.Log
	w.stdlogRestore = zap.RedirectStdLog(env.Log)

	// Log errors rather then print them
	w.inCommand = true

	w.log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", version+" ("+runtime.Version()+") : "+gitHash))
	if len(c.StringSlice("config")) == 0 {
		w.log.Debug("Using defaults (no configuration file)")
	}

	return nil
}

func (w *appWrapper) errorHandler(context *cli.Context, err error) {

	if !w.inCommand {
		cli.HandleExitCoder(err)
		return
	}

	if err == nil {
		return
	}

	// we are in command run, log is fully prepared
	if exitErr, ok := err.(cli.ExitCoder); ok {
		if err.Error() != "" {
			var msg string
			if _, ok := exitErr.(cli.ErrorFormatter); ok {
				msg = fmt.Sprintf("%+v\n", err)
			} else {
				msg = err.Error()
			}
			w.log.Error("Command ended with error", zap.Int("code", exitErr.ExitCode()), zap.String("error", msg))
		}
		cli.OsExiter(exitErr.ExitCode())
	}
}

func (w *appWrapper) afterCommandRun(c *cli.Context) error {
	w.inCommand = false
	return nil
}

func (w *appWrapper) afterAppRun(c *cli.Context) error {

	if w.prof != nil {
		w.prof.Stop()
	}

	if w.log != nil {

		w.log.Debug("Program ended", zap.Strings("parsed args", c.Args().Slice()))

		w.stdlogRestore()
		_ = w.log.Sync()
	}

	if w.rpt != nil {
		if err := w.rpt.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "unable to finalize report: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "report created: %s\n", w.rpt.Name())
		}
	}
	return nil
}

func main() {

	// exit code is decided after all cleanup is done
	exitCode := 0
	cli.OsExiter = func(code int) { exitCode = code }

	app := cli.NewApp()

	app.Name = "fb2thumb"
	app.Usage = "FictionBook cover thumbnailer"
	app.Version = version + " (" + runtime.Version() + ") : " + gitHash

	var wrap appWrapper
	app.Before = wrap.beforeAppRun
	app.After = wrap.afterAppRun
	app.ExitErrHandler = wrap.errorHandler

	app.Flags = []cli.Flag{
		// only one profile could be enabled at a time, beforeAppRun refuses more
		&cli.StringFlag{Name: "cpuprofile", Hidden: true, Usage: "write cpu profile to `PATH`"},
		&cli.StringFlag{Name: "memprofile", Hidden: true, Usage: "write memory profile to `PATH`"},
		&cli.StringFlag{Name: "blkprofile", Hidden: true, Usage: "write block profile to `PATH`"},
		&cli.StringFlag{Name: "traceprofile", Hidden: true, Usage: "write trace profile to `PATH`"},
		&cli.StringFlag{Name: "mutexprofile", Hidden: true, Usage: "write mutex profile to `PATH`"},

		&cli.GenericFlag{Name: state.FlagName, Hidden: true, Usage: "--internal--", Value: state.NewLocalEnv()},

		&cli.StringSliceFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML, TOML, HCL or JSON). if FILE is \"-\" JSON will be expected from STDIN"},
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "output debug messages to console"},
		&cli.BoolFlag{Name: "report", Aliases: []string{"r"}, Usage: "create report archive on exit (log, configuration and books which failed)"},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "thumbnail",
			Usage:  "Produces thumbnail for a single book",
			Action: commands.Thumbnail,
			Before: wrap.beforeCommandRun,
			After:  wrap.afterCommandRun,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "size", Aliases: []string{"s"}, Usage: "maximum `SIZE` of thumbnail side in pixels (default: from configuration)"},
			},
			ArgsUsage: "SOURCE DESTINATION",
			CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    path or file:// URI of fb2 file, could be zipped (single entry archive)

DESTINATION:
    thumbnail file name, only written when cover was found

Suitable to be called by desktop thumbnailing service, for example:
    Exec=fb2thumb thumbnail -s %%s %%u %%o
`, cli.CommandHelpTemplate),
		},
		{
			Name:      "extract",
			Usage:     "Extracts cover image from a single book as is",
			Action:    commands.Extract,
			Before:    wrap.beforeCommandRun,
			After:     wrap.afterCommandRun,
			ArgsUsage: "SOURCE [DESTINATION]",
			CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    path or file:// URI of fb2 file, could be zipped (single entry archive)

DESTINATION:
    file name to write cover image to, if absent - STDOUT
`, cli.CommandHelpTemplate),
		},
		{
			Name:   "batch",
			Usage:  "Produces thumbnails for all books in directory",
			Action: commands.Batch,
			Before: wrap.beforeCommandRun,
			After:  wrap.afterCommandRun,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "size", Aliases: []string{"s"}, Usage: "maximum `SIZE` of thumbnail side in pixels (default: from configuration)"},
				&cli.BoolFlag{Name: "ow", Usage: "recreate thumbnails even if they are up to date"},
				&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "keep running and update thumbnails when books change"},
			},
			ArgsUsage: "SOURCE [DESTINATION]",
			CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    path to directory, all fb2 files under it (recursively, symbolic links are not followed) will be processed

DESTINATION:
    directory to put thumbnails in, file names are produced by "batch.name_template" from configuration
    if absent - current working directory
`, cli.CommandHelpTemplate),
		},
		{
			Name:      "dumpconfig",
			Usage:     "Dumps active configuration (JSON)",
			Action:    commands.DumpConfig,
			Before:    wrap.beforeCommandRun,
			After:     wrap.afterCommandRun,
			ArgsUsage: "DESTINATION",
			CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
    file name to write configuration to (YAML if extension is .yaml or .yml, JSON otherwise), if absent - STDOUT
`, cli.CommandHelpTemplate),
		},
	}

	if err := app.Run(os.Args); err != nil && exitCode == 0 {
		exitCode = 1
	}
	if wrap.log != nil {
		_ = wrap.log.Sync()
	}
	os.Exit(exitCode)
}
