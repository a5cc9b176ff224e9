package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"fb2thumb/state"
)

// DumpConfig is "dumpconfig" command body. Configuration is written as JSON unless destination has
// YAML extension.
func DumpConfig(ctx *cli.Context) error {

	const (
		errPrefix = "dumpconfig: "
		errCode   = 1
	)

	env := ctx.Generic(state.FlagName).(*state.LocalEnv)

	data, err := env.Cfg.GetActualBytes()
	if err != nil {
		return cli.Exit(fmt.Errorf("%sunable to get configuration: %w", errPrefix, err), errCode)
	}

	fname := ctx.Args().Get(0)
	if len(fname) == 0 {
		if _, err := os.Stdout.Write(data); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to write configuration: %w", errPrefix, err), errCode)
		}
		return nil
	}

	switch strings.ToLower(filepath.Ext(fname)) {
	case ".yml", ".yaml":
		if data, err = yaml.JSONToYAML(data); err != nil {
			return cli.Exit(fmt.Errorf("%sunable to convert configuration: %w", errPrefix, err), errCode)
		}
	}

	env.Log.Info("Dumping configuration", zap.String("file", fname))
	if err := os.WriteFile(fname, data, 0644); err != nil {
		return cli.Exit(fmt.Errorf("%sunable to write configuration: %w", errPrefix, err), errCode)
	}
	return nil
}
