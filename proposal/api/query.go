package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nicolaslara/dao-contracts/common/errors"
	"github.com/nicolaslara/dao-contracts/common/prettyprint"
)

// Query message kinds, as used for the top-level JSON key.
const (
	KindConfig           = "config"
	KindProposal         = "proposal"
	KindListProposals    = "list_proposals"
	KindReverseProposals = "reverse_proposals"
	KindProposalCount    = "proposal_count"
	KindVote             = "vote"
	KindListVotes        = "list_votes"
	KindInfo             = "info"
)

// Kinds lists all query message kinds.
var Kinds = []string{
	KindConfig,
	KindProposal,
	KindListProposals,
	KindReverseProposals,
	KindProposalCount,
	KindVote,
	KindListVotes,
	KindInfo,
}

// QueryMsg is a query accepted by a single choice proposal module.
//
// Exactly one field is set on a valid message. Unknown fields inside a
// variant are accepted and dropped.
type QueryMsg struct {
	Config           *ConfigQuery           `json:"config,omitempty"`
	Proposal         *ProposalQuery         `json:"proposal,omitempty"`
	ListProposals    *ListProposalsQuery    `json:"list_proposals,omitempty"`
	ReverseProposals *ReverseProposalsQuery `json:"reverse_proposals,omitempty"`
	ProposalCount    *ProposalCountQuery    `json:"proposal_count,omitempty"`
	Vote             *VoteQuery             `json:"vote,omitempty"`
	ListVotes        *ListVotesQuery        `json:"list_votes,omitempty"`
	Info             *InfoQuery             `json:"info,omitempty"`
}

// ConfigQuery requests the module configuration.
type ConfigQuery struct{}

// ProposalQuery requests a single proposal.
type ProposalQuery struct {
	ProposalID uint64 `json:"proposal_id"`
}

// UnmarshalJSON decodes a ProposalQuery, requiring proposal_id.
func (q *ProposalQuery) UnmarshalJSON(data []byte) error {
	body, err := decodeBody(data, "proposal_id")
	if err != nil {
		return err
	}
	var dec ProposalQuery
	if err = body.required("proposal_id", &dec.ProposalID); err != nil {
		return err
	}
	*q = dec
	return nil
}

// ListProposalsQuery requests proposals in ascending id order.
type ListProposalsQuery struct {
	Limit      *uint64 `json:"limit,omitempty"`
	StartAfter *uint64 `json:"start_after,omitempty"`
}

// UnmarshalJSON decodes a ListProposalsQuery.
func (q *ListProposalsQuery) UnmarshalJSON(data []byte) error {
	body, err := decodeBody(data, "limit", "start_after")
	if err != nil {
		return err
	}
	var dec ListProposalsQuery
	if err = body.optional("limit", &dec.Limit); err != nil {
		return err
	}
	if err = body.optional("start_after", &dec.StartAfter); err != nil {
		return err
	}
	*q = dec
	return nil
}

// ReverseProposalsQuery requests proposals in descending id order.
type ReverseProposalsQuery struct {
	Limit       *uint64 `json:"limit,omitempty"`
	StartBefore *uint64 `json:"start_before,omitempty"`
}

// UnmarshalJSON decodes a ReverseProposalsQuery.
func (q *ReverseProposalsQuery) UnmarshalJSON(data []byte) error {
	body, err := decodeBody(data, "limit", "start_before")
	if err != nil {
		return err
	}
	var dec ReverseProposalsQuery
	if err = body.optional("limit", &dec.Limit); err != nil {
		return err
	}
	if err = body.optional("start_before", &dec.StartBefore); err != nil {
		return err
	}
	*q = dec
	return nil
}

// ProposalCountQuery requests the number of proposals created.
type ProposalCountQuery struct{}

// VoteQuery requests the ballot of a voter on a proposal.
type VoteQuery struct {
	ProposalID uint64 `json:"proposal_id"`
	Voter      string `json:"voter"`
}

// UnmarshalJSON decodes a VoteQuery, requiring proposal_id and voter.
func (q *VoteQuery) UnmarshalJSON(data []byte) error {
	body, err := decodeBody(data, "proposal_id", "voter")
	if err != nil {
		return err
	}
	var dec VoteQuery
	if err = body.required("proposal_id", &dec.ProposalID); err != nil {
		return err
	}
	if err = body.required("voter", &dec.Voter); err != nil {
		return err
	}
	*q = dec
	return nil
}

// ListVotesQuery requests the ballots on a proposal ordered by voter.
type ListVotesQuery struct {
	ProposalID uint64  `json:"proposal_id"`
	Limit      *uint64 `json:"limit,omitempty"`
	StartAfter *string `json:"start_after,omitempty"`
}

// UnmarshalJSON decodes a ListVotesQuery, requiring proposal_id.
func (q *ListVotesQuery) UnmarshalJSON(data []byte) error {
	body, err := decodeBody(data, "proposal_id", "limit", "start_after")
	if err != nil {
		return err
	}
	var dec ListVotesQuery
	if err = body.required("proposal_id", &dec.ProposalID); err != nil {
		return err
	}
	if err = body.optional("limit", &dec.Limit); err != nil {
		return err
	}
	if err = body.optional("start_after", &dec.StartAfter); err != nil {
		return err
	}
	*q = dec
	return nil
}

// InfoQuery requests the contract name and version.
type InfoQuery struct{}

// NewConfigQuery creates a config query.
func NewConfigQuery() *QueryMsg {
	return &QueryMsg{Config: &ConfigQuery{}}
}

// NewProposalQuery creates a proposal query.
func NewProposalQuery(id uint64) *QueryMsg {
	return &QueryMsg{Proposal: &ProposalQuery{ProposalID: id}}
}

// NewListProposalsQuery creates a list_proposals query. Nil arguments are
// left unset.
func NewListProposalsQuery(limit, startAfter *uint64) *QueryMsg {
	return &QueryMsg{ListProposals: &ListProposalsQuery{Limit: limit, StartAfter: startAfter}}
}

// NewReverseProposalsQuery creates a reverse_proposals query. Nil arguments
// are left unset.
func NewReverseProposalsQuery(limit, startBefore *uint64) *QueryMsg {
	return &QueryMsg{ReverseProposals: &ReverseProposalsQuery{Limit: limit, StartBefore: startBefore}}
}

// NewProposalCountQuery creates a proposal_count query.
func NewProposalCountQuery() *QueryMsg {
	return &QueryMsg{ProposalCount: &ProposalCountQuery{}}
}

// NewVoteQuery creates a vote query.
func NewVoteQuery(id uint64, voter string) *QueryMsg {
	return &QueryMsg{Vote: &VoteQuery{ProposalID: id, Voter: voter}}
}

// NewListVotesQuery creates a list_votes query. Nil arguments are left
// unset.
func NewListVotesQuery(id uint64, limit *uint64, startAfter *string) *QueryMsg {
	return &QueryMsg{ListVotes: &ListVotesQuery{ProposalID: id, Limit: limit, StartAfter: startAfter}}
}

// NewInfoQuery creates an info query.
func NewInfoQuery() *QueryMsg {
	return &QueryMsg{Info: &InfoQuery{}}
}

// UnmarshalJSON decodes a QueryMsg, rejecting anything but an object with
// exactly one known variant key whose body is an object.
func (q *QueryMsg) UnmarshalJSON(data []byte) error {
	members, err := objectMembers(data)
	if err != nil {
		return errors.WithContext(ErrValidation, "query message must be a JSON object")
	}

	switch len(members) {
	case 0:
		return errors.WithContext(ErrValidation, "query message has no variant")
	case 1:
	default:
		keys := make([]string, 0, len(members))
		for _, m := range members {
			keys = append(keys, m.key)
		}
		return errors.WithContext(ErrValidation,
			fmt.Sprintf("query message has multiple variants: %s", strings.Join(keys, ", ")),
		)
	}

	kind, body := members[0].key, members[0].value
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.WithContext(ErrValidation, fmt.Sprintf("%s: body must be a JSON object", kind))
	}

	var (
		msg QueryMsg
		dst interface{}
	)
	switch kind {
	case KindConfig:
		msg.Config = &ConfigQuery{}
		dst = msg.Config
	case KindProposal:
		msg.Proposal = &ProposalQuery{}
		dst = msg.Proposal
	case KindListProposals:
		msg.ListProposals = &ListProposalsQuery{}
		dst = msg.ListProposals
	case KindReverseProposals:
		msg.ReverseProposals = &ReverseProposalsQuery{}
		dst = msg.ReverseProposals
	case KindProposalCount:
		msg.ProposalCount = &ProposalCountQuery{}
		dst = msg.ProposalCount
	case KindVote:
		msg.Vote = &VoteQuery{}
		dst = msg.Vote
	case KindListVotes:
		msg.ListVotes = &ListVotesQuery{}
		dst = msg.ListVotes
	case KindInfo:
		msg.Info = &InfoQuery{}
		dst = msg.Info
	default:
		return errors.WithContext(ErrValidation, fmt.Sprintf("unknown variant '%s'", kind))
	}

	if err = json.Unmarshal(body, dst); err != nil {
		return errors.WithContext(ErrValidation, fmt.Sprintf("%s: %s", kind, err))
	}
	*q = msg
	return nil
}

// ValidateBasic performs basic query message validity checks.
func (q *QueryMsg) ValidateBasic() error {
	switch n := q.numSet(); n {
	case 0:
		return errors.WithContext(ErrValidation, "query message has no variant")
	case 1:
	default:
		return errors.WithContext(ErrValidation, fmt.Sprintf("query message has %d variants set", n))
	}

	if q.Vote != nil && q.Vote.Voter == "" {
		return errors.WithContext(ErrValidation, "vote: voter must not be empty")
	}
	return nil
}

// Kind returns the name of the set variant, or an empty string if the
// message does not have exactly one variant set.
func (q *QueryMsg) Kind() string {
	if q.numSet() != 1 {
		return ""
	}
	switch {
	case q.Config != nil:
		return KindConfig
	case q.Proposal != nil:
		return KindProposal
	case q.ListProposals != nil:
		return KindListProposals
	case q.ReverseProposals != nil:
		return KindReverseProposals
	case q.ProposalCount != nil:
		return KindProposalCount
	case q.Vote != nil:
		return KindVote
	case q.ListVotes != nil:
		return KindListVotes
	default:
		return KindInfo
	}
}

func (q *QueryMsg) numSet() int {
	var n int
	for _, set := range []bool{
		q.Config != nil,
		q.Proposal != nil,
		q.ListProposals != nil,
		q.ReverseProposals != nil,
		q.ProposalCount != nil,
		q.Vote != nil,
		q.ListVotes != nil,
		q.Info != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// DecodeQueryMsg decodes and validates a JSON encoded query message.
func DecodeQueryMsg(data []byte) (*QueryMsg, error) {
	var q QueryMsg
	if err := json.Unmarshal(data, &q); err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		// Syntax errors are caught by encoding/json before UnmarshalJSON
		// is invoked.
		return nil, errors.WithContext(ErrValidation, err.Error())
	}
	if err := q.ValidateBasic(); err != nil {
		return nil, err
	}
	return &q, nil
}

// PrettyPrint writes a pretty-printed representation of QueryMsg to the
// given writer.
func (q QueryMsg) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	kind := q.Kind()
	if kind == "" {
		fmt.Fprintf(w, "%s[invalid query message]\n", prefix)
		return
	}
	fmt.Fprintf(w, "%sQuery: %s\n", prefix, kind)

	field := func(name string, v interface{}) {
		fmt.Fprintf(w, "%s  %-13s %v\n", prefix, name+":", v)
	}
	optU64 := func(name string, v *uint64) {
		if v != nil {
			field(name, *v)
		}
	}
	switch {
	case q.Proposal != nil:
		field("Proposal ID", q.Proposal.ProposalID)
	case q.ListProposals != nil:
		optU64("Limit", q.ListProposals.Limit)
		optU64("Start after", q.ListProposals.StartAfter)
	case q.ReverseProposals != nil:
		optU64("Limit", q.ReverseProposals.Limit)
		optU64("Start before", q.ReverseProposals.StartBefore)
	case q.Vote != nil:
		field("Proposal ID", q.Vote.ProposalID)
		field("Voter", q.Vote.Voter)
	case q.ListVotes != nil:
		field("Proposal ID", q.ListVotes.ProposalID)
		optU64("Limit", q.ListVotes.Limit)
		if q.ListVotes.StartAfter != nil {
			field("Start after", *q.ListVotes.StartAfter)
		}
	}
}

type objectMember struct {
	key   string
	value json.RawMessage
}

// objectMembers returns the members of a JSON object in document order,
// keeping repeated keys.
func objectMembers(data []byte) ([]objectMember, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	members := []objectMember{}
	for dec.More() {
		if tok, err = dec.Token(); err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		var value json.RawMessage
		if err = dec.Decode(&value); err != nil {
			return nil, err
		}
		members = append(members, objectMember{key: key, value: value})
	}
	if _, err = dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}

// variantBody holds the known fields of a variant body, matched by exact
// key. Other fields are dropped.
type variantBody map[string]json.RawMessage

func decodeBody(data []byte, fields ...string) (variantBody, error) {
	members, err := objectMembers(data)
	if err != nil {
		return nil, err
	}

	body := make(variantBody)
	for _, m := range members {
		var known bool
		for _, f := range fields {
			if m.key == f {
				known = true
				break
			}
		}
		if !known {
			continue
		}
		if _, dup := body[m.key]; dup {
			return nil, fmt.Errorf("duplicate field `%s`", m.key)
		}
		body[m.key] = m.value
	}
	return body, nil
}

// required decodes a field that must be present and not null.
func (b variantBody) required(name string, dst interface{}) error {
	raw, ok := b[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("missing field `%s`", name)
	}
	return decodeField(name, raw, dst)
}

// optional decodes a field that may be absent or null, leaving dst untouched
// when absent.
func (b variantBody) optional(name string, dst interface{}) error {
	raw, ok := b[name]
	if !ok {
		return nil
	}
	return decodeField(name, raw, dst)
}

func decodeField(name string, raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("invalid type for field `%s`: %s, expected %s", name, typeErr.Value, typeErr.Type)
		}
		return fmt.Errorf("invalid field `%s`: %w", name, err)
	}
	return nil
}

var _ prettyprint.PrettyPrinter = QueryMsg{}
