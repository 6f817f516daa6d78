package api

import (
	"context"
	"fmt"
	"io"

	"github.com/nicolaslara/dao-contracts/common/prettyprint"
	"github.com/nicolaslara/dao-contracts/common/quantity"
)

// Config is the configuration of a proposal module.
type Config struct {
	// Threshold is the passing rule applied to new proposals.
	Threshold Threshold `json:"threshold"`
	// MaxVotingPeriod is the default voting period of new proposals.
	MaxVotingPeriod Duration `json:"max_voting_period"`
	// OnlyMembersExecute restricts execution of passed proposals to members.
	OnlyMembersExecute bool `json:"only_members_execute"`
	// DAO is the address of the DAO owning the module.
	DAO string `json:"dao"`
	// DepositInfo is the deposit required to create a proposal, if any.
	DepositInfo *CheckedDepositInfo `json:"deposit_info"`
}

// ValidateBasic performs basic config validity checks.
func (c *Config) ValidateBasic() error {
	if err := c.Threshold.ValidateBasic(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.MaxVotingPeriod.ValidateBasic(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.DAO == "" {
		return fmt.Errorf("config: dao address not set")
	}
	return nil
}

// PrettyPrint writes a pretty-printed representation of Config to the given
// writer.
func (c Config) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	fmt.Fprintf(w, "%sDAO:                  %s\n", prefix, c.DAO)
	fmt.Fprintf(w, "%sOnly members execute: %t\n", prefix, c.OnlyMembersExecute)
	switch {
	case c.MaxVotingPeriod.Height != nil:
		fmt.Fprintf(w, "%sMax voting period:    %d blocks\n", prefix, *c.MaxVotingPeriod.Height)
	case c.MaxVotingPeriod.Time != nil:
		fmt.Fprintf(w, "%sMax voting period:    %d seconds\n", prefix, *c.MaxVotingPeriod.Time)
	}
	fmt.Fprintf(w, "%sThreshold:\n", prefix)
	c.Threshold.PrettyPrint(ctx, prefix+"  ", w)
	if c.DepositInfo != nil {
		fmt.Fprintf(w, "%sDeposit:              %s %s\n", prefix, c.DepositInfo.Deposit, c.DepositInfo.Token)
	}
}

// ContractVersion identifies the contract a state was produced by.
type ContractVersion struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// InfoResponse is the response to an info query.
type InfoResponse struct {
	Info ContractVersion `json:"info"`
}

// ProposalResponse is a proposal together with its id.
type ProposalResponse struct {
	ID       uint64   `json:"id"`
	Proposal Proposal `json:"proposal"`
}

// PrettyPrint writes a pretty-printed representation of ProposalResponse to
// the given writer.
func (pr ProposalResponse) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	fmt.Fprintf(w, "%sID: %d\n", prefix, pr.ID)
	pr.Proposal.PrettyPrint(ctx, prefix+"  ", w)
}

// ProposalListResponse is the response to list_proposals and
// reverse_proposals queries.
type ProposalListResponse struct {
	Proposals []ProposalResponse `json:"proposals"`
}

// PrettyPrint writes a pretty-printed representation of ProposalListResponse
// to the given writer.
func (pl ProposalListResponse) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	if len(pl.Proposals) == 0 {
		fmt.Fprintf(w, "%s(no proposals)\n", prefix)
		return
	}
	for _, p := range pl.Proposals {
		p.PrettyPrint(ctx, prefix, w)
	}
}

// VoteInfo is a single ballot cast on a proposal.
type VoteInfo struct {
	Voter string            `json:"voter"`
	Vote  Vote              `json:"vote"`
	Power quantity.Quantity `json:"power"`
}

// PrettyPrint writes a pretty-printed representation of VoteInfo to the
// given writer.
func (vi VoteInfo) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	fmt.Fprintf(w, "%s%s: %s (power %s)\n", prefix, vi.Voter, vi.Vote, vi.Power)
}

// VoteResponse is the response to a vote query. Vote is nil if the voter
// did not vote.
type VoteResponse struct {
	Vote *VoteInfo `json:"vote"`
}

// VoteListResponse is the response to a list_votes query.
type VoteListResponse struct {
	Votes []VoteInfo `json:"votes"`
}

var (
	_ prettyprint.PrettyPrinter = Config{}
	_ prettyprint.PrettyPrinter = ProposalResponse{}
	_ prettyprint.PrettyPrinter = ProposalListResponse{}
	_ prettyprint.PrettyPrinter = VoteInfo{}
)
