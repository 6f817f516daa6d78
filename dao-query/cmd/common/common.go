// Package common implements common dao-query command options and utilities.
package common

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/config"
)

const (
	// CfgConfigFile is the flag used to specify a config file.
	CfgConfigFile = "config"
	// CfgDataDir is the flag used to specify the data directory.
	CfgDataDir = "datadir"

	dataDirPerm = 0o700
)

var (
	// RootFlags has the flags that are common across all commands.
	RootFlags = flag.NewFlagSet("", flag.ContinueOnError)

	rootLog = logging.GetLogger("dao-query")
)

// DataDir returns the data directory iff one is set.
func DataDir() string {
	return config.GlobalConfig.Common.DataDir
}

// Logger returns the command logger.
func Logger() *logging.Logger {
	return rootLog
}

// InitConfig loads the config file (if any) and applies the command line
// overrides on top of it.
func InitConfig() {
	if cfgFile := viper.GetString(CfgConfigFile); cfgFile != "" {
		if err := config.InitConfig(cfgFile); err != nil {
			EarlyLogAndExit(err)
		}
	}

	if viper.IsSet(CfgDataDir) {
		config.GlobalConfig.Common.DataDir = viper.GetString(CfgDataDir)
	}
	if dataDir := config.GlobalConfig.Common.DataDir; dataDir != "" {
		// Force the data directory to be an absolute path.
		abs, err := filepath.Abs(dataDir)
		if err != nil {
			EarlyLogAndExit(err)
		}
		config.GlobalConfig.Common.DataDir = abs
	}
}

// Init initializes the common environment across all commands.
func Init() error {
	initFns := []func() error{
		initDataDir,
		initLogging,
	}

	for _, fn := range initFns {
		if err := fn(); err != nil {
			return err
		}
	}

	rootLog.Debug("common initialization complete")

	return nil
}

// EarlyLogAndExit logs the error and exits.
//
// Note: This routine should only be used prior to the logging system
// being initialized.
func EarlyLogAndExit(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func initDataDir() error {
	dataDir := DataDir()
	if dataDir == "" {
		return nil
	}

	fi, err := os.Lstat(dataDir)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(dataDir, dataDirPerm)
	case err != nil:
		return err
	}

	if !fi.Mode().IsDir() {
		return fmt.Errorf("init: datadir '%s' is not a directory", dataDir)
	}
	return nil
}

func normalizePath(f string) string {
	if !filepath.IsAbs(f) && DataDir() != "" {
		f = filepath.Join(DataDir(), f)
		return filepath.Clean(f)
	}
	return f
}

func init() {
	initLoggingFlags()

	RootFlags.String(CfgConfigFile, "", "config file")
	RootFlags.String(CfgDataDir, "", "data directory")
	RootFlags.AddFlagSet(loggingFlags)

	_ = viper.BindPFlags(RootFlags)
}
