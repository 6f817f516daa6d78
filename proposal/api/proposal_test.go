package api

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicolaslara/dao-contracts/common/prettyprint"
	"github.com/nicolaslara/dao-contracts/common/quantity"
)

var testBlock = BlockInfo{
	Height:  12_345,
	Time:    1_571_797_419_879_305_533,
	ChainID: "cosmos-testnet-14002",
}

func absolute(p PercentageThreshold) Threshold {
	return Threshold{AbsolutePercentage: &AbsolutePercentage{Percentage: p}}
}

func thresholdQuorum(threshold, quorum PercentageThreshold) Threshold {
	return Threshold{ThresholdQuorum: &ThresholdQuorum{Threshold: threshold, Quorum: quorum}}
}

func votes(yes, no, abstain uint64) Votes {
	return Votes{
		Yes:     *quantity.NewFromUint64(yes),
		No:      *quantity.NewFromUint64(no),
		Abstain: *quantity.NewFromUint64(abstain),
	}
}

func setupProposal(threshold Threshold, v Votes, totalPower uint64, expired bool) *Proposal {
	expiration := ExpiresAtHeight(testBlock.Height + 100)
	if expired {
		expiration = ExpiresAtHeight(testBlock.Height - 5)
	}
	return &Proposal{
		Title:       "Demo",
		Description: "Info",
		Proposer:    "test",
		StartHeight: 100,
		Expiration:  expiration,
		Threshold:   threshold,
		TotalPower:  *quantity.NewFromUint64(totalPower),
		Status:      StatusOpen,
		Votes:       v,
	}
}

func isPassed(threshold Threshold, v Votes, totalPower uint64, expired bool) bool {
	return setupProposal(threshold, v, totalPower, expired).IsPassed(&testBlock)
}

func isRejected(threshold Threshold, v Votes, totalPower uint64, expired bool) bool {
	return setupProposal(threshold, v, totalPower, expired).IsRejected(&testBlock)
}

func TestPassMajorityPercentage(t *testing.T) {
	require := require.New(t)

	threshold := absolute(NewMajority())
	v := votes(7, 4, 2)

	// 7 yes of 13 possible (15 total, 2 abstain).
	require.True(isPassed(threshold, v, 15, false))
	require.True(isPassed(threshold, v, 15, true), "expiry should not matter")
	require.False(isPassed(threshold, v, 17, false), "more power raises the bar")
}

func TestTrickyPass(t *testing.T) {
	require := require.New(t)

	// 7/13 floored to 18 decimal places.
	threshold := absolute(NewPercent(MustDecimal("0.538461538461538461")))
	require.True(isPassed(threshold, votes(7, 6, 0), 13, false))
}

func TestWeirdFailureRounding(t *testing.T) {
	require := require.New(t)

	// 6/13 floored to 18 decimal places.
	threshold := absolute(NewPercent(MustDecimal("0.461538461538461538")))
	v := votes(6, 7, 0)
	require.True(isPassed(threshold, v, 13, false))
	require.False(isRejected(threshold, v, 13, false))
}

func TestTrickyPassMajority(t *testing.T) {
	require := require.New(t)

	threshold := absolute(NewMajority())
	v := votes(7, 6, 0)
	require.True(isPassed(threshold, v, 13, false))
	require.False(isPassed(threshold, v, 14, false))
}

func TestRejectMajorityPercentage(t *testing.T) {
	require := require.New(t)

	threshold := absolute(NewMajority())
	v := votes(4, 7, 2)

	for _, tc := range []struct {
		total    uint64
		expired  bool
		rejected bool
		msg      string
	}{
		{15, false, true, "7 of 13 possible is a majority"},
		{15, true, true, "expiry should not matter"},
		{17, false, false, "7 of 15 possible is not a majority"},
		{17, true, false, "expiry should not matter"},
		{14, false, true, "lower total power"},
		{14, true, true, "lower total power, expired"},
	} {
		require.Equal(tc.rejected, isRejected(threshold, v, tc.total, tc.expired), tc.msg)
	}
}

func TestProposalPassedQuorum(t *testing.T) {
	require := require.New(t)

	threshold := thresholdQuorum(NewPercent(DecimalPercent(50)), NewPercent(DecimalPercent(40)))
	passing := votes(7, 3, 2)
	passesIgnoringAbstain := votes(6, 6, 5)
	failing := votes(6, 7, 2)

	for _, tc := range []struct {
		v       Votes
		total   uint64
		expired bool
		passed  bool
		msg     string
	}{
		{passing, 30, true, true, "over quorum and over threshold"},
		{passing, 33, true, false, "under quorum"},
		{passesIgnoringAbstain, 40, true, true, "threshold passes ignoring abstain"},
		{failing, 20, true, false, "over quorum but under threshold"},
		{passing, 30, false, false, "open, remaining votes could be no"},
		{passesIgnoringAbstain, 40, false, false, "open, remaining votes could be no"},
		{passing, 14, false, true, "threshold of total power voted yes"},
		{passesIgnoringAbstain, 17, false, true, "all votes cast, some abstain"},
		{passing, 16, false, true, "remaining votes cannot flip the outcome"},
	} {
		require.Equal(tc.passed, isPassed(threshold, tc.v, tc.total, tc.expired), tc.msg)
	}
}

func TestProposalRejectedQuorum(t *testing.T) {
	require := require.New(t)

	threshold := thresholdQuorum(NewMajority(), NewPercent(DecimalPercent(40)))
	rejecting := votes(3, 8, 2)
	rejectedIgnoringAbstain := votes(4, 8, 5)
	failing := votes(5, 8, 2)

	for _, tc := range []struct {
		v        Votes
		total    uint64
		expired  bool
		rejected bool
		msg      string
	}{
		{rejecting, 30, true, true, "over quorum and over failing threshold"},
		{rejecting, 33, true, true, "under quorum and expired"},
		{rejectedIgnoringAbstain, 40, true, true, "failing threshold met ignoring abstain"},
		{failing, 20, true, true, "expired, only cast votes count"},
		{failing, 20, false, false, "open, remaining votes could be yes"},
		{rejecting, 30, false, false, "open, remaining votes could be yes"},
		{rejectedIgnoringAbstain, 40, false, false, "open, remaining votes could be yes"},
		{rejecting, 14, false, true, "threshold of total power voted no"},
		{rejectedIgnoringAbstain, 17, false, true, "all votes cast, some abstain"},
		{rejecting, 16, false, true, "remaining votes cannot flip the outcome"},
	} {
		require.Equal(tc.rejected, isRejected(threshold, tc.v, tc.total, tc.expired), tc.msg)
	}
}

func TestQuorumEdgeCases(t *testing.T) {
	require := require.New(t)

	threshold := thresholdQuorum(NewPercent(DecimalPercent(60)), NewPercent(DecimalPercent(80)))

	missingVoters := votes(9, 1, 0)
	require.False(isPassed(threshold, missingVoters, 15, false), "no quorum")
	require.False(isPassed(threshold, missingVoters, 15, true), "no quorum, expired")

	waitTilExpired := votes(8, 4, 0)
	require.False(isPassed(threshold, waitTilExpired, 15, false))
	require.True(isPassed(threshold, waitTilExpired, 15, true))

	passesEarly := votes(9, 3, 0)
	require.True(isPassed(threshold, passesEarly, 15, false))
	require.True(isPassed(threshold, passesEarly, 15, true))
}

func TestFullThreshold(t *testing.T) {
	require := require.New(t)

	threshold := absolute(NewPercent(DecimalOne()))

	require.True(isRejected(threshold, votes(0, 0, 10), 10, false), "no possible votes")
	require.True(isRejected(threshold, votes(5, 1, 0), 10, false), "a single no vote")
	require.False(isRejected(threshold, votes(5, 0, 0), 10, false), "no votes against yet")
	require.True(isPassed(threshold, votes(10, 0, 0), 10, false), "unanimous")

	quorum := thresholdQuorum(NewPercent(DecimalOne()), NewPercent(DecimalPercent(10)))
	require.True(isRejected(quorum, votes(0, 0, 5), 10, true), "expired, all abstain")
	require.True(isRejected(quorum, votes(3, 1, 0), 10, true), "expired, one no vote")
	require.False(isRejected(quorum, votes(3, 0, 0), 10, true), "expired, no votes against")
}

func TestCurrentStatus(t *testing.T) {
	require := require.New(t)

	p := setupProposal(absolute(NewMajority()), votes(7, 0, 0), 10, false)
	require.Equal(StatusPassed, p.CurrentStatus(&testBlock))

	p = setupProposal(absolute(NewMajority()), votes(1, 1, 0), 10, true)
	require.Equal(StatusRejected, p.CurrentStatus(&testBlock), "expired without passing")

	p = setupProposal(absolute(NewMajority()), votes(1, 1, 0), 10, false)
	require.Equal(StatusOpen, p.CurrentStatus(&testBlock))

	p.Status = StatusExecuted
	require.Equal(StatusExecuted, p.CurrentStatus(&testBlock), "only open proposals change")

	p = setupProposal(absolute(NewMajority()), votes(1, 1, 0), 10, false)
	rsp := p.ToResponse(&testBlock, 3)
	require.EqualValues(3, rsp.ID)
	require.Equal(StatusOpen, rsp.Proposal.Status)
	require.NotNil(rsp.Proposal.Msgs, "msgs should serialize as an empty list")

	p.Expiration = ExpiresAtTime(testBlock.Time)
	rsp = p.ToResponse(&testBlock, 3)
	require.Equal(StatusRejected, rsp.Proposal.Status, "time expiration is inclusive")
	require.Equal(StatusOpen, p.Status, "ToResponse should not modify the stored proposal")
}

func TestProposalJSON(t *testing.T) {
	require := require.New(t)

	p := setupProposal(
		thresholdQuorum(NewMajority(), NewPercent(MustDecimal("0.2"))),
		votes(1, 2, 3),
		10,
		false,
	)
	rsp := p.ToResponse(&testBlock, 1)
	enc, err := json.Marshal(&rsp)
	require.NoError(err)
	require.JSONEq(`{
		"id": 1,
		"proposal": {
			"title": "Demo",
			"description": "Info",
			"proposer": "test",
			"start_height": 100,
			"expiration": {"at_height": 12445},
			"threshold": {"threshold_quorum": {"threshold": {"majority": {}}, "quorum": {"percent": "0.2"}}},
			"total_power": "10",
			"msgs": [],
			"status": "open",
			"votes": {"yes": "1", "no": "2", "abstain": "3"},
			"deposit_info": null
		}
	}`, string(enc))

	var dec ProposalResponse
	require.NoError(json.Unmarshal(enc, &dec))
	require.Equal(rsp.ID, dec.ID)
	require.Equal(rsp.Proposal.Status, dec.Proposal.Status)
	require.Zero(rsp.Proposal.TotalPower.Cmp(&dec.Proposal.TotalPower))
	require.True(dec.Proposal.Threshold.ThresholdQuorum.Quorum.Percent.Equal(MustDecimal("0.2")))
}

func TestProposalPrettyPrint(t *testing.T) {
	require := require.New(t)

	p := setupProposal(absolute(NewMajority()), votes(7, 0, 0), 10, false)

	var buf bytes.Buffer
	p.PrettyPrint(context.Background(), "", &buf)
	require.Contains(buf.String(), "Status:       open")

	buf.Reset()
	ctx := context.WithValue(context.Background(), prettyprint.ContextKeyBlock, &testBlock)
	p.PrettyPrint(ctx, "", &buf)
	require.Contains(buf.String(), "Status:       passed", "status should be computed at the context block")
}
