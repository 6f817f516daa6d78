package common

import (
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/config"
)

const (
	cfgLogFile  = "log.file"
	cfgLogFmt   = "log.format"
	cfgLogLevel = "log.level"
	// Custom log levels for modules are not supported by the flags.
	// Use the config file instead.

	defaultLevelKey = "default"
)

var loggingFlags = flag.NewFlagSet("", flag.ContinueOnError)

func initLogging() error {
	cfg := config.GlobalConfig.Common.Log
	if viper.IsSet(cfgLogFile) {
		cfg.File = viper.GetString(cfgLogFile)
	}
	if viper.IsSet(cfgLogFmt) {
		cfg.Format = viper.GetString(cfgLogFmt)
	}

	logLevel := logging.LevelInfo
	moduleLevels := map[string]logging.Level{}
	for module, v := range cfg.Level {
		var lvl logging.Level
		if err := lvl.Set(v); err != nil {
			return err
		}
		if module == defaultLevelKey {
			logLevel = lvl
			continue
		}
		moduleLevels[module] = lvl
	}
	if viper.IsSet(cfgLogLevel) {
		if err := logLevel.Set(viper.GetString(cfgLogLevel)); err != nil {
			return err
		}
	}

	logFmt := logging.FmtLogfmt
	if cfg.Format != "" {
		if err := logFmt.Set(cfg.Format); err != nil {
			return err
		}
	}

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		logFile := normalizePath(cfg.File)

		var err error
		if w, err = os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
			return err
		}
	}

	return logging.Initialize(w, logFmt, logLevel, moduleLevels)
}

func initLoggingFlags() {
	logFmt := logging.FmtLogfmt
	logLevel := logging.LevelInfo

	loggingFlags.String(cfgLogFile, "", "log file")
	loggingFlags.Var(&logFmt, cfgLogFmt, "log format")
	loggingFlags.Var(&logLevel, cfgLogLevel, "log level")
}
