package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/nicolaslara/dao-contracts/common/encoding/bech32"
	"github.com/nicolaslara/dao-contracts/common/errors"
	"github.com/nicolaslara/dao-contracts/common/quantity"
	"github.com/nicolaslara/dao-contracts/proposal/api"
	"github.com/nicolaslara/dao-contracts/proposal/state"
)

func testAddress(t *testing.T, b byte) string {
	addr, err := bech32.Encode("juno", bytes.Repeat([]byte{b}, 20))
	require.NoError(t, err)
	return addr
}

func newTestQuerier(t *testing.T, numProposals uint64, limits Limits) (*Querier, *api.Genesis) {
	require := require.New(t)

	threshold := api.Threshold{
		AbsolutePercentage: &api.AbsolutePercentage{Percentage: api.NewMajority()},
	}
	g := &api.Genesis{
		Contract: testAddress(t, 0x01),
		Block:    api.BlockInfo{Height: 500, Time: 1, ChainID: "juno-1"},
		Config: api.Config{
			Threshold:       threshold,
			MaxVotingPeriod: api.Duration{Height: new(uint64)},
			DAO:             testAddress(t, 0x02),
		},
		Info: api.ContractVersion{
			Contract: "crates.io:cw-proposal-single",
			Version:  "0.1.0",
		},
		Ballots: make(map[uint64][]api.VoteInfo),
	}
	for id := uint64(1); id <= numProposals; id++ {
		p := api.Proposal{
			Title:      fmt.Sprintf("Proposal %d", id),
			Proposer:   testAddress(t, 0x03),
			Expiration: api.ExpiresAtHeight(1_000),
			Threshold:  threshold,
			TotalPower: *quantity.NewFromUint64(10),
			Status:     api.StatusOpen,
		}
		if id == 1 {
			// A yes vote with a majority of the power, stored as open.
			vi := api.VoteInfo{Voter: testAddress(t, 0x10), Vote: api.VoteYes, Power: *quantity.NewFromUint64(6)}
			require.NoError(p.Votes.Add(vi.Vote, &vi.Power))
			g.Ballots[id] = []api.VoteInfo{vi}
		}
		g.Proposals = append(g.Proposals, api.ProposalResponse{ID: id, Proposal: p})
	}

	store, err := state.New("")
	require.NoError(err)
	t.Cleanup(store.Close)
	require.NoError(store.ImportGenesis(context.Background(), g))

	return New(store, limits), g
}

func smartQuery(t *testing.T, q *Querier, msg string, dst interface{}) {
	rsp, err := q.SmartQuery(context.Background(), []byte(msg))
	require.NoError(t, err, msg)
	require.NoError(t, json.Unmarshal(rsp, dst), msg)
}

func TestSmartQuery(t *testing.T) {
	require := require.New(t)

	q, g := newTestQuerier(t, 5, DefaultLimits())

	var cfg api.Config
	smartQuery(t, q, `{"config":{}}`, &cfg)
	require.Equal(g.Config.DAO, cfg.DAO)

	var info api.InfoResponse
	smartQuery(t, q, `{"info":{}}`, &info)
	require.Equal(g.Info, info.Info)

	var count uint64
	smartQuery(t, q, `{"proposal_count":{}}`, &count)
	require.EqualValues(5, count)

	var prop api.ProposalResponse
	smartQuery(t, q, `{"proposal":{"proposal_id":1}}`, &prop)
	require.EqualValues(1, prop.ID)
	require.Equal(api.StatusPassed, prop.Proposal.Status, "status should be recomputed")

	smartQuery(t, q, `{"proposal":{"proposal_id":2}}`, &prop)
	require.Equal(api.StatusOpen, prop.Proposal.Status)

	var list api.ProposalListResponse
	smartQuery(t, q, `{"list_proposals":{"limit":2,"start_after":1}}`, &list)
	require.Len(list.Proposals, 2)
	require.EqualValues(2, list.Proposals[0].ID)
	require.EqualValues(3, list.Proposals[1].ID)

	smartQuery(t, q, `{"reverse_proposals":{"start_before":3}}`, &list)
	require.Len(list.Proposals, 2)
	require.EqualValues(2, list.Proposals[0].ID)
	require.EqualValues(1, list.Proposals[1].ID)
	require.Equal(api.StatusPassed, list.Proposals[1].Proposal.Status)

	voter := g.Ballots[1][0].Voter
	var vote api.VoteResponse
	smartQuery(t, q, fmt.Sprintf(`{"vote":{"proposal_id":1,"voter":"%s"}}`, voter), &vote)
	require.NotNil(vote.Vote)
	require.Equal(api.VoteYes, vote.Vote.Vote)

	var votes api.VoteListResponse
	smartQuery(t, q, `{"list_votes":{"proposal_id":1}}`, &votes)
	require.Len(votes.Votes, 1)
	require.Equal(voter, votes.Votes[0].Voter)
}

func TestSmartQueryRawResponses(t *testing.T) {
	require := require.New(t)

	q, _ := newTestQuerier(t, 1, DefaultLimits())
	ctx := context.Background()

	rsp, err := q.SmartQuery(ctx, []byte(`{"vote":{"proposal_id":1,"voter":"juno1nobody"}}`))
	require.NoError(err)
	require.JSONEq(`{"vote":null}`, string(rsp), "missing ballot")

	rsp, err = q.SmartQuery(ctx, []byte(`{"list_votes":{"proposal_id":42}}`))
	require.NoError(err)
	require.JSONEq(`{"votes":[]}`, string(rsp), "missing proposal has no votes")

	rsp, err = q.SmartQuery(ctx, []byte(`{"list_proposals":{"start_after":1}}`))
	require.NoError(err)
	require.JSONEq(`{"proposals":[]}`, string(rsp))

	rsp, err = q.SmartQuery(ctx, []byte(`{"proposal_count":{}}`))
	require.NoError(err)
	require.Equal(`1`, string(rsp))
}

func TestSmartQueryErrors(t *testing.T) {
	require := require.New(t)

	q, _ := newTestQuerier(t, 1, DefaultLimits())
	ctx := context.Background()

	before := testutil.ToFloat64(queryFailures.WithLabelValues(invalidKind))
	_, err := q.SmartQuery(ctx, []byte(`{"config":{},"info":{}}`))
	require.True(errors.Is(err, api.ErrValidation))
	require.Equal(before+1, testutil.ToFloat64(queryFailures.WithLabelValues(invalidKind)))

	before = testutil.ToFloat64(queryFailures.WithLabelValues(api.KindProposal))
	_, err = q.SmartQuery(ctx, []byte(`{"proposal":{"proposal_id":99}}`))
	require.True(errors.Is(err, api.ErrNoSuchProposal))
	require.Equal(before+1, testutil.ToFloat64(queryFailures.WithLabelValues(api.KindProposal)))

	_, err = q.SmartQuery(ctx, []byte(`{"vote":{"voter":"addr1"}}`))
	require.True(errors.Is(err, api.ErrValidation), "vote without proposal_id")

	_, err = q.Query(ctx, &api.QueryMsg{})
	require.True(errors.Is(err, api.ErrValidation), "empty message")
}

func TestPagination(t *testing.T) {
	require := require.New(t)

	q, _ := newTestQuerier(t, 40, Limits{Default: 30, Max: 35})

	var list api.ProposalListResponse
	smartQuery(t, q, `{"list_proposals":{}}`, &list)
	require.Len(list.Proposals, 30, "default limit")

	smartQuery(t, q, `{"list_proposals":{"limit":100}}`, &list)
	require.Len(list.Proposals, 35, "max limit")

	smartQuery(t, q, `{"reverse_proposals":{"limit":0}}`, &list)
	require.Empty(list.Proposals, "zero limit")

	for _, tc := range []struct {
		limits   Limits
		req      *uint64
		expected uint64
	}{
		{Limits{Default: 30, Max: 100}, nil, 30},
		{Limits{Default: 30, Max: 100}, func() *uint64 { v := uint64(7); return &v }(), 7},
		{Limits{Default: 30, Max: 10}, nil, 10},
		{Limits{Default: 30, Max: 0}, func() *uint64 { v := uint64(1000); return &v }(), 1000},
	} {
		require.Equal(tc.expected, tc.limits.apply(tc.req))
	}
}
