// Package cmd implements the commands for the dao-query executable.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	cmdCommon "github.com/nicolaslara/dao-contracts/dao-query/cmd/common"
	"github.com/nicolaslara/dao-contracts/dao-query/cmd/node"
	"github.com/nicolaslara/dao-contracts/dao-query/cmd/query"
	"github.com/nicolaslara/dao-contracts/dao-query/cmd/state"
)

// Version is the software version, set at link time.
var Version = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:     "dao-query",
	Short:   "Proposal module query toolkit",
	Version: Version,
}

// RootCommand returns the root (top level) cobra.Command.
func RootCommand() *cobra.Command {
	return rootCmd
}

// Execute spawns the main entry point after handling the config file
// and command line arguments.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(cmdCommon.InitConfig)

	rootCmd.PersistentFlags().AddFlagSet(cmdCommon.RootFlags)

	// Register all of the sub-commands.
	for _, v := range []func(*cobra.Command){
		node.Register,
		query.Register,
		state.Register,
	} {
		v(rootCmd)
	}
}
