// Package flags implements common flags used across multiple commands.
package flags

import (
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// CfgPretty is the flag used to request human readable output.
	CfgPretty = "pretty"

	// CfgDryRun is the flag used to specify a dry-run of an operation.
	CfgDryRun = "dry_run"
)

var (
	// PrettyFlags has the pretty output flag.
	PrettyFlags = flag.NewFlagSet("", flag.ContinueOnError)

	// DryRunFlag has the dry-run flag.
	DryRunFlag = flag.NewFlagSet("", flag.ContinueOnError)
)

// Pretty returns true iff the pretty output flag is set.
func Pretty() bool {
	return viper.GetBool(CfgPretty)
}

// DryRun returns true iff the dry-run flag is set.
func DryRun() bool {
	return viper.GetBool(CfgDryRun)
}

func init() {
	PrettyFlags.Bool(CfgPretty, false, "print human readable output instead of JSON")

	DryRunFlag.BoolP(CfgDryRun, "n", false, "don't actually do anything, just show what will be done")

	for _, v := range []*flag.FlagSet{
		PrettyFlags,
		DryRunFlag,
	} {
		_ = viper.BindPFlags(v)
	}
}
