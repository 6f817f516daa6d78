package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/nicolaslara/dao-contracts/common/prettyprint"
	"github.com/nicolaslara/dao-contracts/common/quantity"
)

// precisionFactor scales vote counts before comparing them against a
// percentage of the total power, so that rounding of the threshold stays
// below the resolution of a single vote.
var precisionFactor = big.NewInt(1_000_000_000)

// decimalFractional is 10^18, the scale of Decimal atomics.
var decimalFractional = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Proposal is a single choice governance proposal.
type Proposal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Proposer    string `json:"proposer"`

	StartHeight uint64     `json:"start_height"`
	Expiration  Expiration `json:"expiration"`

	Threshold  Threshold         `json:"threshold"`
	TotalPower quantity.Quantity `json:"total_power"`

	// Msgs are the messages executed if the proposal passes. They are kept
	// verbatim and never interpreted.
	Msgs []json.RawMessage `json:"msgs"`

	Status Status `json:"status"`
	Votes  Votes  `json:"votes"`

	DepositInfo *CheckedDepositInfo `json:"deposit_info"`
}

// CurrentStatus returns the status of the proposal as of the given block.
//
// Stored statuses are only updated on vote, execute and close, so an open
// proposal may have since passed or expired.
func (p *Proposal) CurrentStatus(block *BlockInfo) Status {
	switch {
	case p.Status == StatusOpen && p.IsPassed(block):
		return StatusPassed
	case p.Status == StatusOpen && (p.Expiration.IsExpired(block) || p.IsRejected(block)):
		return StatusRejected
	default:
		return p.Status
	}
}

// UpdateStatus sets the proposal's status to its current status.
func (p *Proposal) UpdateStatus(block *BlockInfo) {
	p.Status = p.CurrentStatus(block)
}

// IsPassed returns true iff the proposal is sure to pass, even before
// expiration if no future sequence of votes can make it fail.
func (p *Proposal) IsPassed(block *BlockInfo) bool {
	switch {
	case p.Threshold.AbsolutePercentage != nil:
		options := p.TotalPower.SaturatingSub(&p.Votes.Abstain)
		return doesVoteCountPass(&p.Votes.Yes, options, &p.Threshold.AbsolutePercentage.Percentage)
	case p.Threshold.ThresholdQuorum != nil:
		tq := p.Threshold.ThresholdQuorum
		if !doesVoteCountPass(p.Votes.Total(), &p.TotalPower, &tq.Quorum) {
			return false
		}

		var options *quantity.Quantity
		if p.Expiration.IsExpired(block) {
			// Once expired only the votes actually cast count.
			options = p.Votes.Total().SaturatingSub(&p.Votes.Abstain)
		} else {
			options = p.TotalPower.SaturatingSub(&p.Votes.Abstain)
		}
		return doesVoteCountPass(&p.Votes.Yes, options, &tq.Threshold)
	default:
		return false
	}
}

// IsRejected returns true iff the proposal is sure to be rejected.
func (p *Proposal) IsRejected(block *BlockInfo) bool {
	switch {
	case p.Threshold.AbsolutePercentage != nil:
		options := p.TotalPower.SaturatingSub(&p.Votes.Abstain)
		return p.rejectedWith(options, &p.Threshold.AbsolutePercentage.Percentage)
	case p.Threshold.ThresholdQuorum != nil:
		tq := p.Threshold.ThresholdQuorum
		quorumMet := doesVoteCountPass(p.Votes.Total(), &p.TotalPower, &tq.Quorum)
		expired := p.Expiration.IsExpired(block)

		switch {
		case quorumMet && expired:
			options := p.Votes.Total().SaturatingSub(&p.Votes.Abstain)
			return p.rejectedWith(options, &tq.Threshold)
		case !quorumMet && expired:
			return true
		default:
			options := p.TotalPower.SaturatingSub(&p.Votes.Abstain)
			return p.rejectedWith(options, &tq.Threshold)
		}
	default:
		return false
	}
}

func (p *Proposal) rejectedWith(options *quantity.Quantity, threshold *PercentageThreshold) bool {
	// With a 100% threshold the inverted failing threshold is 0%, which
	// zero no votes would meet. Any single no vote rejects instead, and no
	// possible votes at all rejects outright.
	if threshold.IsFull() {
		if options.IsZero() {
			return true
		}
		return !p.Votes.No.IsZero()
	}
	return doesVoteCountFail(&p.Votes.No, options, threshold)
}

// ToResponse returns the proposal with its status recomputed for block,
// as returned by queries.
func (p *Proposal) ToResponse(block *BlockInfo, id uint64) ProposalResponse {
	prop := *p
	prop.UpdateStatus(block)
	if prop.Msgs == nil {
		prop.Msgs = []json.RawMessage{}
	}
	return ProposalResponse{
		ID:       id,
		Proposal: prop,
	}
}

// ValidateBasic performs basic proposal validity checks.
func (p *Proposal) ValidateBasic() error {
	if p.Proposer == "" {
		return fmt.Errorf("proposal has no proposer")
	}
	if err := p.Expiration.ValidateBasic(); err != nil {
		return err
	}
	if err := p.Threshold.ValidateBasic(); err != nil {
		return err
	}
	if _, ok := statusNames[p.Status]; !ok {
		return fmt.Errorf("invalid status: %d", uint8(p.Status))
	}
	if p.Votes.Total().Cmp(&p.TotalPower) > 0 {
		return fmt.Errorf("votes cast (%s) exceed total power (%s)", p.Votes.Total(), p.TotalPower)
	}
	return nil
}

// PrettyPrint writes a pretty-printed representation of Proposal to the
// given writer.
//
// If the context carries a BlockInfo under prettyprint.ContextKeyBlock the
// status shown is the one current at that block.
func (p Proposal) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	status := p.Status
	if block, ok := ctx.Value(prettyprint.ContextKeyBlock).(*BlockInfo); ok {
		status = p.CurrentStatus(block)
	}

	fmt.Fprintf(w, "%sTitle:        %s\n", prefix, p.Title)
	fmt.Fprintf(w, "%sProposer:     %s\n", prefix, p.Proposer)
	fmt.Fprintf(w, "%sStart height: %d\n", prefix, p.StartHeight)
	fmt.Fprintf(w, "%sExpiration:   %s\n", prefix, p.Expiration)
	fmt.Fprintf(w, "%sStatus:       %s\n", prefix, status)
	fmt.Fprintf(w, "%sTotal power:  %s\n", prefix, p.TotalPower)
	fmt.Fprintf(w, "%sThreshold:\n", prefix)
	p.Threshold.PrettyPrint(ctx, prefix+"  ", w)
	fmt.Fprintf(w, "%sVotes:\n", prefix)
	p.Votes.PrettyPrint(ctx, prefix+"  ", w)
	fmt.Fprintf(w, "%sMessages:     %d\n", prefix, len(p.Msgs))
}

func doesVoteCountPass(yes, options *quantity.Quantity, percent *PercentageThreshold) bool {
	// All abstain never passes.
	if options.IsZero() {
		return false
	}
	switch {
	case percent.Majority != nil:
		doubled := new(big.Int).Lsh(yes.ToBigInt(), 1)
		return doubled.Cmp(options.ToBigInt()) > 0
	case percent.Percent != nil:
		return compareVoteCount(yes, voteCmpGeq, options, *percent.Percent)
	default:
		return false
	}
}

func doesVoteCountFail(no, options *quantity.Quantity, percent *PercentageThreshold) bool {
	// All abstain always fails.
	if options.IsZero() {
		return true
	}
	switch {
	case percent.Majority != nil:
		doubled := new(big.Int).Lsh(no.ToBigInt(), 1)
		return doubled.Cmp(options.ToBigInt()) >= 0
	case percent.Percent != nil:
		return compareVoteCount(no, voteCmpGreater, options, DecimalOne().Sub(*percent.Percent))
	default:
		return false
	}
}

type voteCmp uint8

const (
	voteCmpGreater voteCmp = iota
	voteCmpGeq
)

// compareVoteCount compares votes against percentage of total, with the
// threshold floored after scaling both sides by precisionFactor.
func compareVoteCount(votes *quantity.Quantity, cmp voteCmp, total *quantity.Quantity, percentage Decimal) bool {
	scaledVotes := new(big.Int).Mul(votes.ToBigInt(), precisionFactor)

	threshold := new(big.Int).Mul(total.ToBigInt(), precisionFactor)
	threshold.Mul(threshold, percentage.Atomics())
	threshold.Quo(threshold, decimalFractional)

	switch cmp {
	case voteCmpGreater:
		return scaledVotes.Cmp(threshold) > 0
	default:
		return scaledVotes.Cmp(threshold) >= 0
	}
}

var _ prettyprint.PrettyPrinter = Proposal{}
