// Package state implements the proposal state sub-commands.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nicolaslara/dao-contracts/common/logging"
	cmdCommon "github.com/nicolaslara/dao-contracts/dao-query/cmd/common"
	cmdFlags "github.com/nicolaslara/dao-contracts/dao-query/cmd/common/flags"
	"github.com/nicolaslara/dao-contracts/proposal/api"
	"github.com/nicolaslara/dao-contracts/proposal/state"
)

var (
	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "proposal state utilities",
	}

	importCmd = &cobra.Command{
		Use:   "import <genesis.json>",
		Short: "sanity check a proposal genesis and import it into the data directory",
		Args:  cobra.ExactArgs(1),
		Run:   doImport,
	}

	setBlockCmd = &cobra.Command{
		Use:   "set-block <height> <time>",
		Short: "advance the block proposal statuses are computed at",
		Args:  cobra.ExactArgs(2),
		Run:   doSetBlock,
	}

	logger = logging.GetLogger("cmd/state")
)

func loadGenesis(path string) (*api.Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}

	var g api.Genesis
	if err = json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file: %w", err)
	}
	if err = g.SanityCheck(); err != nil {
		return nil, err
	}
	return &g, nil
}

func writeSummary(w io.Writer, g *api.Genesis) {
	var ballots int
	for _, b := range g.Ballots {
		ballots += len(b)
	}
	fmt.Fprintf(w, "Contract:       %s\n", g.Contract)
	fmt.Fprintf(w, "Block:          %d (%s)\n", g.Block.Height, g.Block.ChainID)
	fmt.Fprintf(w, "Proposals:      %d\n", len(g.Proposals))
	fmt.Fprintf(w, "Proposal count: %d\n", g.EffectiveProposalCount())
	fmt.Fprintf(w, "Ballots:        %d\n", ballots)
}

func openStore() *state.Store {
	dataDir := cmdCommon.DataDir()
	if dataDir == "" {
		logger.Error("data directory must be set")
		os.Exit(1)
	}
	store, err := state.New(dataDir)
	if err != nil {
		logger.Error("failed to open proposal state",
			"err", err,
		)
		os.Exit(1)
	}
	return store
}

func doImport(cmd *cobra.Command, args []string) {
	if err := cmdCommon.Init(); err != nil {
		cmdCommon.EarlyLogAndExit(err)
	}

	g, err := loadGenesis(args[0])
	if err != nil {
		logger.Error("invalid genesis",
			"err", err,
		)
		os.Exit(1)
	}
	writeSummary(cmd.OutOrStdout(), g)

	if cmdFlags.DryRun() {
		logger.Info("dry run, not importing")
		return
	}

	store := openStore()
	defer store.Close()

	if err = store.ImportGenesis(context.Background(), g); err != nil {
		logger.Error("failed to import genesis",
			"err", err,
		)
		os.Exit(1)
	}
	logger.Info("imported genesis",
		"contract", g.Contract,
		"proposals", len(g.Proposals),
	)
}

func parseBlock(args []string, current *api.BlockInfo) (*api.BlockInfo, error) {
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid height: %w", err)
	}
	t, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid time: %w", err)
	}
	return &api.BlockInfo{
		Height:  height,
		Time:    api.Timestamp(t),
		ChainID: current.ChainID,
	}, nil
}

func doSetBlock(cmd *cobra.Command, args []string) {
	if err := cmdCommon.Init(); err != nil {
		cmdCommon.EarlyLogAndExit(err)
	}

	store := openStore()
	defer store.Close()

	ctx := context.Background()
	current, err := store.Block(ctx)
	if err != nil {
		logger.Error("failed to query current block",
			"err", err,
		)
		os.Exit(1)
	}
	block, err := parseBlock(args, current)
	if err != nil {
		logger.Error("invalid block",
			"err", err,
		)
		os.Exit(1)
	}
	if err = store.SetBlock(ctx, block); err != nil {
		logger.Error("failed to set block",
			"err", err,
		)
		os.Exit(1)
	}
}

// Register registers the state sub-command and all of its children.
func Register(parentCmd *cobra.Command) {
	importCmd.Flags().AddFlagSet(cmdFlags.DryRunFlag)

	stateCmd.AddCommand(importCmd)
	stateCmd.AddCommand(setBlockCmd)
	parentCmd.AddCommand(stateCmd)
}
