// Package query answers JSON encoded proposal module queries from a backend.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nicolaslara/dao-contracts/common/errors"
	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/proposal/api"
)

const invalidKind = "invalid"

var (
	queryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dao_query_requests",
			Help: "Number of proposal queries, by kind.",
		},
		[]string{"kind"},
	)
	queryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dao_query_failures",
			Help: "Number of failed proposal queries, by kind.",
		},
		[]string{"kind"},
	)

	queryCollectors = []prometheus.Collector{
		queryRequests,
		queryFailures,
	}

	metricsOnce sync.Once

	_ api.QueryService = (*Querier)(nil)
)

// Limits are the pagination limits applied to listing queries.
type Limits struct {
	// Default is the page size used when a query has no limit.
	Default uint64
	// Max caps any requested page size. Zero means no cap.
	Max uint64
}

// DefaultLimits returns the default pagination limits.
func DefaultLimits() Limits {
	return Limits{
		Default: api.DefaultLimit,
		Max:     api.DefaultMaxLimit,
	}
}

func (l Limits) apply(requested *uint64) uint64 {
	limit := l.Default
	if requested != nil {
		limit = *requested
	}
	if l.Max != 0 && limit > l.Max {
		limit = l.Max
	}
	return limit
}

// Querier answers query messages against a backend.
type Querier struct {
	logger *logging.Logger

	backend api.Backend
	limits  Limits
}

// New creates a new querier.
func New(backend api.Backend, limits Limits) *Querier {
	metricsOnce.Do(func() {
		prometheus.MustRegister(queryCollectors...)
	})

	return &Querier{
		logger:  logging.GetLogger("proposal/query"),
		backend: backend,
		limits:  limits,
	}
}

// SmartQuery decodes, validates and answers a JSON encoded QueryMsg,
// returning the JSON encoded response.
func (q *Querier) SmartQuery(ctx context.Context, msg []byte) ([]byte, error) {
	qm, err := api.DecodeQueryMsg(msg)
	if err != nil {
		queryRequests.With(prometheus.Labels{"kind": invalidKind}).Inc()
		queryFailures.With(prometheus.Labels{"kind": invalidKind}).Inc()
		return nil, err
	}

	kind := qm.Kind()
	queryRequests.With(prometheus.Labels{"kind": kind}).Inc()

	rsp, err := q.Query(ctx, qm)
	if err != nil {
		queryFailures.With(prometheus.Labels{"kind": kind}).Inc()
		q.logger.Debug("query failed",
			"kind", kind,
			"err", err,
		)
		return nil, err
	}

	data, err := json.Marshal(rsp)
	if err != nil {
		queryFailures.With(prometheus.Labels{"kind": kind}).Inc()
		return nil, fmt.Errorf("proposal/query: failed to encode %s response: %w", kind, err)
	}
	return data, nil
}

// GetBlock returns the block the answers are computed at.
func (q *Querier) GetBlock(ctx context.Context) (*api.BlockInfo, error) {
	return q.backend.Block(ctx)
}

// Query answers a decoded query message, returning the response value.
func (q *Querier) Query(ctx context.Context, qm *api.QueryMsg) (interface{}, error) {
	if err := qm.ValidateBasic(); err != nil {
		return nil, err
	}

	switch {
	case qm.Config != nil:
		return q.backend.Config(ctx)
	case qm.Proposal != nil:
		return q.queryProposal(ctx, qm.Proposal)
	case qm.ListProposals != nil:
		return q.queryListProposals(ctx, qm.ListProposals)
	case qm.ReverseProposals != nil:
		return q.queryReverseProposals(ctx, qm.ReverseProposals)
	case qm.ProposalCount != nil:
		return q.backend.ProposalCount(ctx)
	case qm.Vote != nil:
		return q.queryVote(ctx, qm.Vote)
	case qm.ListVotes != nil:
		return q.queryListVotes(ctx, qm.ListVotes)
	case qm.Info != nil:
		info, err := q.backend.Info(ctx)
		if err != nil {
			return nil, err
		}
		return &api.InfoResponse{Info: *info}, nil
	default:
		return nil, errors.WithContext(api.ErrValidation, "query message has no variant")
	}
}

func (q *Querier) queryProposal(ctx context.Context, req *api.ProposalQuery) (*api.ProposalResponse, error) {
	block, err := q.backend.Block(ctx)
	if err != nil {
		return nil, err
	}
	p, err := q.backend.Proposal(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	rsp := p.ToResponse(block, req.ProposalID)
	return &rsp, nil
}

func (q *Querier) queryListProposals(ctx context.Context, req *api.ListProposalsQuery) (*api.ProposalListResponse, error) {
	limit := q.limits.apply(req.Limit)
	if limit == 0 {
		return &api.ProposalListResponse{Proposals: []api.ProposalResponse{}}, nil
	}
	block, err := q.backend.Block(ctx)
	if err != nil {
		return nil, err
	}
	proposals, err := q.backend.ListProposals(ctx, req.StartAfter, limit)
	if err != nil {
		return nil, err
	}
	return toListResponse(block, proposals), nil
}

func (q *Querier) queryReverseProposals(ctx context.Context, req *api.ReverseProposalsQuery) (*api.ProposalListResponse, error) {
	limit := q.limits.apply(req.Limit)
	if limit == 0 {
		return &api.ProposalListResponse{Proposals: []api.ProposalResponse{}}, nil
	}
	block, err := q.backend.Block(ctx)
	if err != nil {
		return nil, err
	}
	proposals, err := q.backend.ReverseProposals(ctx, req.StartBefore, limit)
	if err != nil {
		return nil, err
	}
	return toListResponse(block, proposals), nil
}

func toListResponse(block *api.BlockInfo, proposals []api.ProposalResponse) *api.ProposalListResponse {
	rsp := &api.ProposalListResponse{
		Proposals: make([]api.ProposalResponse, 0, len(proposals)),
	}
	for i := range proposals {
		rsp.Proposals = append(rsp.Proposals, proposals[i].Proposal.ToResponse(block, proposals[i].ID))
	}
	return rsp
}

func (q *Querier) queryVote(ctx context.Context, req *api.VoteQuery) (*api.VoteResponse, error) {
	vi, err := q.backend.Ballot(ctx, req.ProposalID, req.Voter)
	switch {
	case err == nil:
		return &api.VoteResponse{Vote: vi}, nil
	case errors.Is(err, api.ErrNotFound):
		return &api.VoteResponse{}, nil
	default:
		return nil, err
	}
}

func (q *Querier) queryListVotes(ctx context.Context, req *api.ListVotesQuery) (*api.VoteListResponse, error) {
	limit := q.limits.apply(req.Limit)
	if limit == 0 {
		return &api.VoteListResponse{Votes: []api.VoteInfo{}}, nil
	}
	votes, err := q.backend.ListVotes(ctx, req.ProposalID, req.StartAfter, limit)
	if err != nil {
		return nil, err
	}
	if votes == nil {
		votes = []api.VoteInfo{}
	}
	return &api.VoteListResponse{Votes: votes}, nil
}
