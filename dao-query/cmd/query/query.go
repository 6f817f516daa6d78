// Package query implements the query sub-commands.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/common/prettyprint"
	"github.com/nicolaslara/dao-contracts/config"
	cmdCommon "github.com/nicolaslara/dao-contracts/dao-query/cmd/common"
	cmdFlags "github.com/nicolaslara/dao-contracts/dao-query/cmd/common/flags"
	cmdGrpc "github.com/nicolaslara/dao-contracts/dao-query/cmd/common/grpc"
	"github.com/nicolaslara/dao-contracts/proposal/api"
	proposalQuery "github.com/nicolaslara/dao-contracts/proposal/query"
	"github.com/nicolaslara/dao-contracts/proposal/state"
)

const (
	cfgProposalID  = "proposal-id"
	cfgVoter       = "voter"
	cfgLimit       = "limit"
	cfgStartAfter  = "start-after"
	cfgStartBefore = "start-before"

	stdinArg = "-"
)

var (
	encodeFlags = newEncodeFlags()

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "proposal module query utilities",
	}

	validateCmd = &cobra.Command{
		Use:   "validate [file|-]",
		Short: "validate a query message and print its canonical encoding",
		Args:  cobra.MaximumNArgs(1),
		Run:   doValidate,
	}

	encodeCmd = &cobra.Command{
		Use:       "encode <variant>",
		Short:     "build a query message from flags",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: api.Kinds,
		Run:       doEncode,
	}

	runCmd = &cobra.Command{
		Use:   "run [file|-]",
		Short: "send a query message to a node",
		Args:  cobra.MaximumNArgs(1),
		Run:   doRun,
	}

	localCmd = &cobra.Command{
		Use:   "local [file|-]",
		Short: "answer a query message from the local data directory",
		Args:  cobra.MaximumNArgs(1),
		Run:   doLocal,
	}

	logger = logging.GetLogger("cmd/query")
)

func initCommon() {
	if err := cmdCommon.Init(); err != nil {
		cmdCommon.EarlyLogAndExit(err)
	}
}

// readInput reads the query message from the named file, or from r if the
// name is empty or "-".
func readInput(args []string, r io.Reader) ([]byte, error) {
	if len(args) == 0 || args[0] == stdinArg {
		return io.ReadAll(r)
	}
	return os.ReadFile(args[0])
}

func readQueryMsg(cmd *cobra.Command, args []string) (*api.QueryMsg, []byte) {
	raw, err := readInput(args, cmd.InOrStdin())
	if err != nil {
		logger.Error("failed to read query message",
			"err", err,
		)
		os.Exit(1)
	}

	qm, err := api.DecodeQueryMsg(raw)
	if err != nil {
		logger.Error("failed to decode query message",
			"err", err,
		)
		os.Exit(1)
	}
	return qm, raw
}

func doValidate(cmd *cobra.Command, args []string) {
	initCommon()

	qm, _ := readQueryMsg(cmd, args)
	if err := writeQueryMsg(cmdContext(cmd), cmd.OutOrStdout(), qm, cmdFlags.Pretty()); err != nil {
		logger.Error("failed to print query message",
			"err", err,
		)
		os.Exit(1)
	}
}

func writeQueryMsg(ctx context.Context, w io.Writer, qm *api.QueryMsg, pretty bool) error {
	if pretty {
		qm.PrettyPrint(ctx, "", w)
		return nil
	}
	enc, err := json.Marshal(qm)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(enc))
	return err
}

// buildQueryMsg builds a query message of the given kind from the encode
// flags.
func buildQueryMsg(kind string, flags *flag.FlagSet) (*api.QueryMsg, error) {
	optionalUint64 := func(name string) (*uint64, error) {
		if !flags.Changed(name) {
			return nil, nil
		}
		v, err := strconv.ParseUint(flags.Lookup(name).Value.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", name, err)
		}
		return &v, nil
	}
	requiredUint64 := func(name string) (uint64, error) {
		if !flags.Changed(name) {
			return 0, fmt.Errorf("--%s is required for %s", name, kind)
		}
		v, err := optionalUint64(name)
		if err != nil {
			return 0, err
		}
		return *v, nil
	}

	var qm *api.QueryMsg
	switch kind {
	case api.KindConfig:
		qm = api.NewConfigQuery()
	case api.KindProposal:
		id, err := requiredUint64(cfgProposalID)
		if err != nil {
			return nil, err
		}
		qm = api.NewProposalQuery(id)
	case api.KindListProposals:
		limit, err := optionalUint64(cfgLimit)
		if err != nil {
			return nil, err
		}
		startAfter, err := optionalUint64(cfgStartAfter)
		if err != nil {
			return nil, err
		}
		qm = api.NewListProposalsQuery(limit, startAfter)
	case api.KindReverseProposals:
		limit, err := optionalUint64(cfgLimit)
		if err != nil {
			return nil, err
		}
		startBefore, err := optionalUint64(cfgStartBefore)
		if err != nil {
			return nil, err
		}
		qm = api.NewReverseProposalsQuery(limit, startBefore)
	case api.KindProposalCount:
		qm = api.NewProposalCountQuery()
	case api.KindVote:
		id, err := requiredUint64(cfgProposalID)
		if err != nil {
			return nil, err
		}
		voter, _ := flags.GetString(cfgVoter)
		qm = api.NewVoteQuery(id, voter)
	case api.KindListVotes:
		id, err := requiredUint64(cfgProposalID)
		if err != nil {
			return nil, err
		}
		limit, err := optionalUint64(cfgLimit)
		if err != nil {
			return nil, err
		}
		var startAfter *string
		if flags.Changed(cfgStartAfter) {
			s := flags.Lookup(cfgStartAfter).Value.String()
			startAfter = &s
		}
		qm = api.NewListVotesQuery(id, limit, startAfter)
	case api.KindInfo:
		qm = api.NewInfoQuery()
	default:
		return nil, fmt.Errorf("unknown query kind: '%s'", kind)
	}

	if err := qm.ValidateBasic(); err != nil {
		return nil, err
	}
	return qm, nil
}

func doEncode(cmd *cobra.Command, args []string) {
	initCommon()

	qm, err := buildQueryMsg(args[0], cmd.Flags())
	if err != nil {
		logger.Error("failed to build query message",
			"err", err,
		)
		os.Exit(1)
	}
	if err = writeQueryMsg(cmdContext(cmd), cmd.OutOrStdout(), qm, cmdFlags.Pretty()); err != nil {
		logger.Error("failed to print query message",
			"err", err,
		)
		os.Exit(1)
	}
}

func doRun(cmd *cobra.Command, args []string) {
	initCommon()

	_, raw := readQueryMsg(cmd, args)

	conn, err := cmdGrpc.NewClient(cmd)
	if err != nil {
		logger.Error("failed to establish connection with node",
			"err", err,
		)
		os.Exit(1)
	}
	defer conn.Close()

	answer(cmd, api.NewQueryClient(conn), raw)
}

func doLocal(cmd *cobra.Command, args []string) {
	initCommon()

	_, raw := readQueryMsg(cmd, args)

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
	defer store.Close()

	answer(cmd, proposalQuery.New(store, LimitsFromConfig(&config.GlobalConfig.Query)), raw)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func answer(cmd *cobra.Command, svc api.QueryService, raw []byte) {
	ctx := cmdContext(cmd)

	rsp, err := svc.SmartQuery(ctx, raw)
	if err != nil {
		logger.Error("query failed",
			"err", err,
		)
		os.Exit(1)
	}

	var block *api.BlockInfo
	if cmdFlags.Pretty() {
		if block, err = svc.GetBlock(ctx); err != nil {
			logger.Error("failed to query block",
				"err", err,
			)
			os.Exit(1)
		}
	}

	// The message was already decoded once, so this can't fail.
	qm, _ := api.DecodeQueryMsg(raw)
	if err = writeResponse(ctx, cmd.OutOrStdout(), qm.Kind(), rsp, block); err != nil {
		logger.Error("failed to print response",
			"err", err,
		)
		os.Exit(1)
	}
}

// writeResponse prints a JSON encoded response. If a block is given the
// response is pretty printed at that block, otherwise it is printed as
// indented JSON.
func writeResponse(ctx context.Context, w io.Writer, kind string, rsp []byte, block *api.BlockInfo) error {
	if block == nil {
		var buf bytes.Buffer
		if err := json.Indent(&buf, rsp, "", "  "); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(w)
		return err
	}

	var v interface{}
	switch kind {
	case api.KindConfig:
		v = new(api.Config)
	case api.KindProposal:
		v = new(api.ProposalResponse)
	case api.KindListProposals, api.KindReverseProposals:
		v = new(api.ProposalListResponse)
	case api.KindProposalCount:
		v = new(uint64)
	case api.KindVote:
		v = new(api.VoteResponse)
	case api.KindListVotes:
		v = new(api.VoteListResponse)
	case api.KindInfo:
		v = new(api.InfoResponse)
	default:
		return fmt.Errorf("unknown query kind: '%s'", kind)
	}
	if err := json.Unmarshal(rsp, v); err != nil {
		return fmt.Errorf("malformed %s response: %w", kind, err)
	}

	ctx = context.WithValue(ctx, prettyprint.ContextKeyBlock, block)
	switch r := v.(type) {
	case prettyprint.PrettyPrinter:
		r.PrettyPrint(ctx, "", w)
	case *uint64:
		fmt.Fprintf(w, "Proposal count: %d\n", *r)
	case *api.VoteResponse:
		if r.Vote == nil {
			fmt.Fprintln(w, "No vote.")
			return nil
		}
		r.Vote.PrettyPrint(ctx, "", w)
	case *api.VoteListResponse:
		if len(r.Votes) == 0 {
			fmt.Fprintln(w, "No votes.")
		}
		for i, vi := range r.Votes {
			if i > 0 {
				fmt.Fprintln(w)
			}
			vi.PrettyPrint(ctx, "", w)
		}
	case *api.InfoResponse:
		fmt.Fprintf(w, "Contract: %s\n", r.Info.Contract)
		fmt.Fprintf(w, "Version:  %s\n", r.Info.Version)
	}
	return nil
}

// LimitsFromConfig converts the query configuration into pagination limits.
func LimitsFromConfig(cfg *config.QueryConfig) proposalQuery.Limits {
	return proposalQuery.Limits{
		Default: cfg.DefaultLimit,
		Max:     cfg.MaxLimit,
	}
}

// Register registers the query sub-command and all of its children.
func Register(parentCmd *cobra.Command) {
	for _, v := range []*cobra.Command{
		validateCmd,
		encodeCmd,
		runCmd,
		localCmd,
	} {
		v.Flags().AddFlagSet(cmdFlags.PrettyFlags)
		queryCmd.AddCommand(v)
	}

	encodeCmd.Flags().AddFlagSet(encodeFlags)
	runCmd.Flags().AddFlagSet(cmdGrpc.ClientFlags)

	parentCmd.AddCommand(queryCmd)
}

func newEncodeFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.Uint64(cfgProposalID, 0, "proposal id")
	fs.String(cfgVoter, "", "voter address")
	fs.Uint64(cfgLimit, 0, "maximum number of results")
	fs.String(cfgStartAfter, "", "exclusive start cursor (proposal id or voter address)")
	fs.Uint64(cfgStartBefore, 0, "exclusive reverse start cursor")
	return fs
}
