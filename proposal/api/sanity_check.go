package api

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/nicolaslara/dao-contracts/common/encoding/bech32"
	"github.com/nicolaslara/dao-contracts/common/errors"
	"github.com/nicolaslara/dao-contracts/common/quantity"
)

// EffectiveProposalCount returns the proposal count, defaulting to the
// highest proposal id.
func (g *Genesis) EffectiveProposalCount() uint64 {
	count := g.ProposalCount
	for _, p := range g.Proposals {
		if p.ID > count {
			count = p.ID
		}
	}
	return count
}

// SanityCheck checks a genesis document for consistency, reporting all
// problems found.
func (g *Genesis) SanityCheck() error {
	var result *multierror.Error
	fail := func(format string, a ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, a...))
	}

	hrp := ""
	if err := bech32.ValidateAddress(g.Contract, ""); err != nil {
		fail("contract: %w", err)
	} else {
		hrp, _, _ = bech32.Decode(g.Contract)
	}
	checkAddr := func(what, addr string) {
		if err := bech32.ValidateAddress(addr, hrp); err != nil {
			fail("%s: %w", what, err)
		}
	}

	if err := g.Config.ValidateBasic(); err != nil {
		fail("%w", err)
	} else {
		checkAddr("config: dao", g.Config.DAO)
	}
	if g.Info.Contract == "" || g.Info.Version == "" {
		fail("info: contract name and version must be set")
	}

	proposals := make(map[uint64]*Proposal, len(g.Proposals))
	for i := range g.Proposals {
		pr := &g.Proposals[i]
		if pr.ID == 0 {
			fail("proposal at index %d: id must be positive", i)
			continue
		}
		if _, dup := proposals[pr.ID]; dup {
			fail("proposal %d: duplicate id", pr.ID)
			continue
		}
		proposals[pr.ID] = &pr.Proposal

		if err := pr.Proposal.ValidateBasic(); err != nil {
			fail("proposal %d: %w", pr.ID, err)
			continue
		}
		checkAddr(fmt.Sprintf("proposal %d: proposer", pr.ID), pr.Proposal.Proposer)
		if pr.Proposal.StartHeight > g.Block.Height {
			fail("proposal %d: start height %d is after genesis block %d", pr.ID, pr.Proposal.StartHeight, g.Block.Height)
		}
	}
	if g.ProposalCount != 0 && g.ProposalCount < g.EffectiveProposalCount() {
		fail("proposal count %d is less than highest proposal id", g.ProposalCount)
	}

	for id, ballots := range g.Ballots {
		p, ok := proposals[id]
		if !ok {
			fail("ballots: proposal %d does not exist", id)
			continue
		}

		var tally Votes
		seen := make(map[string]bool, len(ballots))
		for _, b := range ballots {
			if seen[b.Voter] {
				fail("ballots: proposal %d: duplicate voter %s", id, b.Voter)
				continue
			}
			seen[b.Voter] = true
			checkAddr(fmt.Sprintf("ballots: proposal %d: voter", id), b.Voter)

			if b.Power.IsZero() {
				fail("ballots: proposal %d: voter %s has no power", id, b.Voter)
			}
			if err := tally.Add(b.Vote, &b.Power); err != nil {
				fail("ballots: proposal %d: voter %s: %w", id, b.Voter, err)
			}
		}
		if !votesEqual(&tally, &p.Votes) {
			fail("ballots: proposal %d: ballots do not match the recorded tally", id)
		}
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return strings.Join(msgs, "; ")
	}
	return errors.WithContext(ErrInvalidGenesis, result.Error())
}

func votesEqual(a, b *Votes) bool {
	eq := func(x, y *quantity.Quantity) bool {
		return x.Cmp(y) == 0
	}
	return eq(&a.Yes, &b.Yes) && eq(&a.No, &b.No) && eq(&a.Abstain, &b.Abstain)
}
