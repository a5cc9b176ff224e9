// Package state defines shared program state.
package state

import (
	"go.uber.org/zap"

	"fb2thumb/config"
	"fb2thumb/reporter"
)

// LocalEnv is everything commands need: configuration, logger and optional debug report.
type LocalEnv struct {
	Debug bool

	Cfg *config.Config
	Log *zap.Logger
	// Rpt is nil unless report was requested, reporter methods accept nil receiver.
	Rpt *reporter.Report
}

// NewLocalEnv returns environment with logger which discards everything.
func NewLocalEnv() *LocalEnv {
	return &LocalEnv{Log: zap.NewNop()}
}

// FlagName is name of hidden cli.GenericFlag carrying LocalEnv from application to commands, so no
// global variables are needed.
const FlagName = "$-localenv-$"

// Set implements cli.Generic, value is never parsed from command line.
func (e *LocalEnv) Set(string) error {
	panic("local environment could not be set from command line")
}

// String implements cli.Generic.
func (e *LocalEnv) String() string {
	return "local-env"
}
