// Package config abstracts all program configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/asaskevich/govalidator"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"fb2thumb/reporter"
)

// Logger configuration for single logger.
type Logger struct {
	Level       string `json:"level,omitempty"`
	Destination string `json:"destination,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// Extract configures cover extraction.
type Extract struct {
	MaxContentSize int64 `json:"max_content_size,omitempty"`
}

// Thumbnail configures thumbnail rendering.
type Thumbnail struct {
	Size        int    `json:"size,omitempty"`
	Format      string `json:"format,omitempty"`
	JpegQuality int    `json:"jpeg_quality,omitempty"`
	Filter      string `json:"filter,omitempty"`
	Upscale     bool   `json:"upscale,omitempty"`
}

// Batch configures processing of directories.
type Batch struct {
	NameTemplate string `json:"name_template,omitempty"`
	Overwrite    bool   `json:"overwrite,omitempty"`
}

// layer mirrors layout of configuration files.
type layer struct {
	Logger struct {
		Console Logger `json:"console"`
		File    Logger `json:"file"`
	} `json:"logger"`
	Extract   Extract   `json:"extract"`
	Thumbnail Thumbnail `json:"thumbnail"`
	Batch     Batch     `json:"batch"`
}

// Config keeps all configuration values.
type Config struct {
	// Path is base configuration directory, always calculated from the path of the first configuration file
	Path string

	// Actual configuration used everywhere - immutable
	ConsoleLogger Logger
	FileLogger    Logger
	Extract       Extract
	Thumbnail     Thumbnail
	Batch         Batch
}

var defaultConfig = []byte(`{
  "logger": {
    "console": {
      "level": "normal"
    },
    "file": {
      "destination": "fb2thumb.log",
      "level": "none",
      "mode": "append"
    }
  },
  "extract": {
    "max_content_size": 268435456
  },
  "thumbnail": {
    "size": 256,
    "format": "png",
    "filter": "lanczos"
  },
  "batch": {
    "name_template": "{{ .Hash }}.{{ .Ext }}"
  }
}`)

// BuildConfig loads configuration. Files are applied in order on top of defaults, every key present in a
// file overrides previous value.
func BuildConfig(fnames ...string) (*Config, error) {

	var (
		err    error
		base   string
		merged map[string]any
	)

	if err = json.Unmarshal(defaultConfig, &merged); err != nil {
		return nil, fmt.Errorf("unable to parse default configuration: %w", err)
	}

	var wasStdin bool
	for i, fname := range fnames {
		var data []byte
		switch {
		case fname == "-":
			// NOTE: only one configuration could be read from STDIN, the rest should be ignored
			if wasStdin {
				continue
			}
			wasStdin = true
			// stdin - json format ONLY
			s, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("unable to read configuration from stdin: %w", err)
			}
			if data, err = jsonToJSON(s); err != nil {
				return nil, fmt.Errorf("unable to parse configuration from stdin: %w", err)
			}
			if i == 0 {
				if base, err = os.Getwd(); err != nil {
					return nil, fmt.Errorf("unable to get working directory: %w", err)
				}
			}
		case len(fname) > 0:
			s, err := os.ReadFile(fname)
			if err != nil {
				return nil, fmt.Errorf("unable to read configuration %s: %w", fname, err)
			}
			if data, err = selectDecoder(fname)(s); err != nil {
				return nil, fmt.Errorf("unable to parse configuration %s: %w", fname, err)
			}
			if i == 0 {
				if base, err = filepath.Abs(filepath.Dir(fname)); err != nil {
					return nil, fmt.Errorf("unable to get configuration directory: %w", err)
				}
			}
		default:
			continue
		}

		var l layer
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("unable to read configuration %s: %w", fname, err)
		}
		// keys present in the file override, including false and 0
		var keys map[string]any
		if err := json.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("unable to read configuration %s: %w", fname, err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := mergo.Merge(&merged, keys, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("unable to merge configuration %s: %w", fname, err)
		}
	}

	var def layer
	if data, err := json.Marshal(merged); err != nil {
		return nil, fmt.Errorf("unable to merge configuration: %w", err)
	} else if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("unable to merge configuration: %w", err)
	}

	conf := Config{
		Path:          base,
		ConsoleLogger: def.Logger.Console,
		FileLogger:    def.Logger.File,
		Extract:       def.Extract,
		Thumbnail:     def.Thumbnail,
		Batch:         def.Batch,
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}

	// relative log destination follows configuration file
	if len(conf.FileLogger.Destination) > 0 && !filepath.IsAbs(conf.FileLogger.Destination) && len(conf.Path) > 0 {
		conf.FileLogger.Destination = filepath.Join(conf.Path, conf.FileLogger.Destination)
	}
	return &conf, nil
}

func (conf *Config) validate() error {

	levels := []string{"debug", "normal", "none"}
	if !govalidator.IsIn(conf.ConsoleLogger.Level, levels...) {
		return fmt.Errorf("bad console logger level %q, expected one of %v", conf.ConsoleLogger.Level, levels)
	}
	if !govalidator.IsIn(conf.ConsoleLogger.Destination, "", "stdout", "stderr") {
		return fmt.Errorf("bad console logger destination %q, expected stdout or stderr", conf.ConsoleLogger.Destination)
	}
	if !govalidator.IsIn(conf.FileLogger.Level, levels...) {
		return fmt.Errorf("bad file logger level %q, expected one of %v", conf.FileLogger.Level, levels)
	}
	if !govalidator.IsIn(conf.FileLogger.Mode, "append", "overwrite") {
		return fmt.Errorf("bad file logger mode %q", conf.FileLogger.Mode)
	}
	if conf.FileLogger.Level != "none" && len(conf.FileLogger.Destination) == 0 {
		return errors.New("file logger destination is not specified")
	}
	if conf.Extract.MaxContentSize <= 0 {
		return fmt.Errorf("bad maximum content size %d", conf.Extract.MaxContentSize)
	}
	if !govalidator.InRangeInt(conf.Thumbnail.Size, 1, 4096) {
		return fmt.Errorf("bad thumbnail size %d, expected 1-4096", conf.Thumbnail.Size)
	}
	if !govalidator.IsIn(strings.ToLower(conf.Thumbnail.Format), "png", "jpeg", "jpg") {
		return fmt.Errorf("bad thumbnail format %q", conf.Thumbnail.Format)
	}
	if !govalidator.InRangeInt(conf.Thumbnail.JpegQuality, 0, 100) {
		return fmt.Errorf("bad jpeg quality %d, expected 0-100", conf.Thumbnail.JpegQuality)
	}
	if !govalidator.IsIn(strings.ToLower(conf.Thumbnail.Filter), "nearest", "box", "linear", "catmull", "lanczos", "gaussian") {
		return fmt.Errorf("bad resampling filter %q", conf.Thumbnail.Filter)
	}
	return nil
}

// GetActualBytes returns actual configuration, including fields initialized by default.
func (conf *Config) GetActualBytes() ([]byte, error) {

	var a layer
	a.Logger.Console = conf.ConsoleLogger
	a.Logger.File = conf.FileLogger
	a.Extract = conf.Extract
	a.Thumbnail = conf.Thumbnail
	a.Batch = conf.Batch

	// Marshall it to json
	b, err := json.Marshal(a)
	if err != nil {
		return []byte{}, err
	}

	// And pretty-print it
	var out bytes.Buffer
	err = json.Indent(&out, b, "", "  ")
	return out.Bytes(), err
}

// PrepareLog returns our standard logger. It prepares zap logger for use by the program.
func (conf *Config) PrepareLog(rpt *reporter.Report) (*zap.Logger, error) {

	// Console - split stdout and stderr, handle colors and redirection

	// low priority messages may be moved away when stdout carries program output
	lpStream := os.Stdout
	if conf.ConsoleLogger.Destination == "stderr" {
		lpStream = os.Stderr
	}

	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	if EnableColorOutput(lpStream) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	consoleEncoderLP := zapcore.NewConsoleEncoder(ec)

	ec = zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	if EnableColorOutput(os.Stderr) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	consoleEncoderHP := newEncoder(ec) // filter errorVerbose

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	var consoleCoreHP, consoleCoreLP zapcore.Core
	switch conf.ConsoleLogger.Level {
	case "normal":
		consoleCoreLP = zapcore.NewCore(consoleEncoderLP, zapcore.Lock(lpStream),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return zapcore.InfoLevel <= lvl && lvl < zapcore.ErrorLevel
			}))
		consoleCoreHP = zapcore.NewCore(consoleEncoderHP, zapcore.Lock(os.Stderr), highPriority)
	case "debug":
		consoleCoreLP = zapcore.NewCore(consoleEncoderLP, zapcore.Lock(lpStream),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return zapcore.DebugLevel <= lvl && lvl < zapcore.ErrorLevel
			}))
		consoleCoreHP = zapcore.NewCore(consoleEncoderHP, zapcore.Lock(os.Stderr), highPriority)
	default:
		consoleCoreLP = zapcore.NewNopCore()
		consoleCoreHP = zapcore.NewNopCore()
	}

	// File

	opener := func(fname, mode string) (f *os.File, err error) {
		flags := os.O_CREATE | os.O_WRONLY
		if mode == "append" {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		if f, err = os.OpenFile(fname, flags, 0644); err != nil {
			return nil, err
		}
		return f, nil
	}

	var (
		fileEncoder    zapcore.Encoder
		fileCore       zapcore.Core
		logLevel       zap.AtomicLevel
		logRequested   bool
		levelRequested = conf.FileLogger.Level
		modeRequested  = conf.FileLogger.Mode
	)

	if rpt != nil {
		// if report is requested always set maximum available logging level for file logger
		levelRequested = "debug"
		modeRequested = "overwrite"
	}

	switch levelRequested {
	case "debug":
		fileEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
		logRequested = true
	case "normal":
		fileEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
		logRequested = true
	}

	var newName string
	if logRequested {
		if f, err := opener(conf.FileLogger.Destination, modeRequested); err == nil {
			fileCore = zapcore.NewCore(fileEncoder, zapcore.Lock(f), logLevel)
			rpt.Store("file.log", f.Name())
		} else if f, err = os.CreateTemp("", "fb2thumb.*.log"); err == nil {
			newName = f.Name()
			fileCore = zapcore.NewCore(fileEncoder, zapcore.Lock(f), logLevel)
			rpt.Store("file.log", newName)
		} else {
			return nil, fmt.Errorf("unable to access file log destination (%s): %w", conf.FileLogger.Destination, err)
		}
	} else {
		fileCore = zapcore.NewNopCore()
	}

	core := zap.New(zapcore.NewTee(consoleCoreHP, consoleCoreLP, fileCore), zap.AddCaller())
	if len(newName) != 0 {
		// log was redirected - we need to report this
		core.Warn("Log file was redirected to new location", zap.String("location", newName))
	}
	return core, nil
}

// When logging error to console - do not output verbose message.

type consoleEnc struct {
	zapcore.Encoder
}

func newEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return consoleEnc{zapcore.NewConsoleEncoder(cfg)}
}

func (c consoleEnc) Clone() zapcore.Encoder {
	return consoleEnc{c.Encoder.Clone()}
}

func (c consoleEnc) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	var newFields []zapcore.Field
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			e := f.Interface.(error)
			f.Interface = errors.New(e.Error())
		}
		newFields = append(newFields, f)
	}
	return c.Encoder.EncodeEntry(ent, newFields)
}
