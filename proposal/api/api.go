// Package api implements the single choice proposal module query API: the
// QueryMsg message family, the proposal data model and status rules, and
// the backend interface answering queries.
package api

import (
	"context"

	"github.com/nicolaslara/dao-contracts/common/errors"
)

// ModuleName is a unique module name for the proposal module.
const ModuleName = "proposal"

const (
	// DefaultLimit is the page size used when a listing query has no limit.
	DefaultLimit uint64 = 30

	// DefaultMaxLimit is the default cap applied to requested page sizes.
	DefaultMaxLimit uint64 = 100
)

var (
	// ErrValidation is the error returned when a query message does not
	// match exactly one known variant or has missing or mistyped fields.
	ErrValidation = errors.New(ModuleName, 1, "proposal: invalid query message")

	// ErrNoSuchProposal is the error returned when a proposal does not exist.
	ErrNoSuchProposal = errors.New(ModuleName, 2, "proposal: no such proposal")

	// ErrNotFound is the error returned when a requested record does not exist.
	ErrNotFound = errors.New(ModuleName, 3, "proposal: not found")

	// ErrInvalidGenesis is the error returned when a genesis document fails
	// its sanity checks.
	ErrInvalidGenesis = errors.New(ModuleName, 4, "proposal: invalid genesis")
)

// Backend answers queries against an indexed proposal module state.
//
// Listing methods take an already capped, non-zero limit.
type Backend interface {
	// Config returns the module configuration.
	Config(ctx context.Context) (*Config, error)

	// Info returns the contract name and version.
	Info(ctx context.Context) (*ContractVersion, error)

	// Block returns the block the state was last updated at.
	Block(ctx context.Context) (*BlockInfo, error)

	// Proposal returns the stored proposal with the given id.
	Proposal(ctx context.Context, id uint64) (*Proposal, error)

	// ListProposals returns stored proposals with ids greater than
	// startAfter, in ascending order.
	ListProposals(ctx context.Context, startAfter *uint64, limit uint64) ([]ProposalResponse, error)

	// ReverseProposals returns stored proposals with ids less than
	// startBefore, in descending order.
	ReverseProposals(ctx context.Context, startBefore *uint64, limit uint64) ([]ProposalResponse, error)

	// ProposalCount returns the number of proposals created.
	ProposalCount(ctx context.Context) (uint64, error)

	// Ballot returns the ballot cast by voter on a proposal, or ErrNotFound.
	Ballot(ctx context.Context, id uint64, voter string) (*VoteInfo, error)

	// ListVotes returns the ballots on a proposal with voter addresses
	// greater than startAfter, in ascending order.
	ListVotes(ctx context.Context, id uint64, startAfter *string, limit uint64) ([]VoteInfo, error)
}

// Genesis is a snapshot of a proposal module state used to seed the index.
type Genesis struct {
	// Contract is the address of the proposal module contract.
	Contract string `json:"contract"`
	// Block is the block the snapshot was taken at.
	Block BlockInfo `json:"block"`
	// Config is the module configuration.
	Config Config `json:"config"`
	// Info is the contract name and version.
	Info ContractVersion `json:"info"`
	// ProposalCount is the number of proposals created. If zero, the
	// highest proposal id is used.
	ProposalCount uint64 `json:"proposal_count,omitempty"`
	// Proposals are all stored proposals.
	Proposals []ProposalResponse `json:"proposals"`
	// Ballots are the ballots cast, by proposal id.
	Ballots map[uint64][]VoteInfo `json:"ballots,omitempty"`
}
