package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"cosmossdk.io/math"

	"github.com/nicolaslara/dao-contracts/common/prettyprint"
	"github.com/nicolaslara/dao-contracts/common/quantity"
)

// Vote is a voter's choice on a proposal.
type Vote uint8

// Vote kinds.
const (
	VoteYes     Vote = 1
	VoteNo      Vote = 2
	VoteAbstain Vote = 3
)

// Vote as string.
const (
	VoteYesName     = "yes"
	VoteNoName      = "no"
	VoteAbstainName = "abstain"
)

// String returns a string representation of a Vote.
func (v Vote) String() string {
	switch v {
	case VoteYes:
		return VoteYesName
	case VoteNo:
		return VoteNoName
	case VoteAbstain:
		return VoteAbstainName
	default:
		return fmt.Sprintf("[unknown vote: %d]", uint8(v))
	}
}

// MarshalText encodes a Vote into text form.
func (v Vote) MarshalText() ([]byte, error) {
	switch v {
	case VoteYes, VoteNo, VoteAbstain:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("invalid vote: %d", uint8(v))
	}
}

// UnmarshalText decodes a text slice into a Vote.
func (v *Vote) UnmarshalText(text []byte) error {
	switch string(text) {
	case VoteYesName:
		*v = VoteYes
	case VoteNoName:
		*v = VoteNo
	case VoteAbstainName:
		*v = VoteAbstain
	default:
		return fmt.Errorf("invalid vote: %s", string(text))
	}
	return nil
}

// Status is the status of a proposal.
type Status uint8

// Proposal statuses.
const (
	StatusOpen     Status = 1
	StatusRejected Status = 2
	StatusPassed   Status = 3
	StatusExecuted Status = 4
	StatusClosed   Status = 5
)

var statusNames = map[Status]string{
	StatusOpen:     "open",
	StatusRejected: "rejected",
	StatusPassed:   "passed",
	StatusExecuted: "executed",
	StatusClosed:   "closed",
}

// String returns a string representation of a Status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("[unknown status: %d]", uint8(s))
}

// MarshalText encodes a Status into text form.
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid status: %d", uint8(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a text slice into a Status.
func (s *Status) UnmarshalText(text []byte) error {
	for k, name := range statusNames {
		if name == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("invalid status: %s", string(text))
}

// Decimal is a fixed-point, non-negative decimal with 18 fractional digits.
//
// It serializes to JSON as a string without trailing zeros ("0.5", "1").
type Decimal struct {
	inner math.LegacyDec
}

// NewDecimalFromString parses a decimal string such as "0.5".
func NewDecimalFromString(s string) (Decimal, error) {
	d, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal '%s': %w", s, err)
	}
	if d.IsNegative() {
		return Decimal{}, fmt.Errorf("invalid decimal '%s': negative", s)
	}
	return Decimal{inner: d}, nil
}

// MustDecimal parses a decimal string and panics on failure.
func MustDecimal(s string) Decimal {
	d, err := NewDecimalFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DecimalPercent returns the decimal equal to n percent.
func DecimalPercent(n int64) Decimal {
	return Decimal{inner: math.LegacyNewDecWithPrec(n, 2)}
}

// DecimalOne returns the decimal 1.
func DecimalOne() Decimal {
	return Decimal{inner: math.LegacyOneDec()}
}

func (d Decimal) dec() math.LegacyDec {
	if d.inner.IsNil() {
		return math.LegacyZeroDec()
	}
	return d.inner
}

// Atomics returns the decimal scaled by 10^18.
func (d Decimal) Atomics() *big.Int {
	return d.dec().BigInt()
}

// Sub returns d - o.
func (d Decimal) Sub(o Decimal) Decimal {
	return Decimal{inner: d.dec().Sub(o.dec())}
}

// Equal returns true iff both decimals have the same value.
func (d Decimal) Equal(o Decimal) bool {
	return d.dec().Equal(o.dec())
}

// IsZero returns true iff the decimal is zero.
func (d Decimal) IsZero() bool {
	return d.dec().IsZero()
}

// GT returns true iff d > o.
func (d Decimal) GT(o Decimal) bool {
	return d.dec().GT(o.dec())
}

// String returns the shortest decimal representation.
func (d Decimal) String() string {
	s := d.dec().String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// MarshalText encodes a Decimal into its string form.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a string form into a Decimal.
func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := NewDecimalFromString(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalBinary encodes a Decimal for storage.
func (d Decimal) MarshalBinary() ([]byte, error) {
	return d.MarshalText()
}

// UnmarshalBinary decodes a stored Decimal.
func (d *Decimal) UnmarshalBinary(data []byte) error {
	return d.UnmarshalText(data)
}

// MarshalJSON encodes a Decimal as a JSON string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a JSON string into a Decimal.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid decimal: expected a string")
	}
	return d.UnmarshalText([]byte(s))
}

// PercentageThreshold is either a simple majority or a fixed percentage.
type PercentageThreshold struct {
	Majority *struct{} `json:"majority,omitempty"`
	Percent  *Decimal  `json:"percent,omitempty"`
}

// NewMajority returns a majority percentage threshold.
func NewMajority() PercentageThreshold {
	return PercentageThreshold{Majority: &struct{}{}}
}

// NewPercent returns a fixed percentage threshold.
func NewPercent(d Decimal) PercentageThreshold {
	return PercentageThreshold{Percent: &d}
}

// ValidateBasic checks that exactly one kind is set and that a percentage
// lies in (0, 1].
func (p *PercentageThreshold) ValidateBasic() error {
	switch {
	case p.Majority != nil && p.Percent != nil:
		return fmt.Errorf("percentage threshold has multiple fields set")
	case p.Majority != nil:
		return nil
	case p.Percent != nil:
		if p.Percent.IsZero() || p.Percent.GT(DecimalOne()) {
			return fmt.Errorf("percentage threshold %s not in (0, 1]", p.Percent)
		}
		return nil
	default:
		return fmt.Errorf("percentage threshold has no fields set")
	}
}

// IsFull returns true iff the threshold is exactly 100%.
func (p PercentageThreshold) IsFull() bool {
	return p.Percent != nil && p.Percent.Equal(DecimalOne())
}

// String returns a string representation of a PercentageThreshold.
func (p PercentageThreshold) String() string {
	switch {
	case p.Majority != nil:
		return "majority"
	case p.Percent != nil:
		return p.Percent.String()
	default:
		return "[invalid threshold]"
	}
}

// AbsolutePercentage requires a percentage of the total voting power.
type AbsolutePercentage struct {
	Percentage PercentageThreshold `json:"percentage"`
}

// ThresholdQuorum requires a turnout quorum and a threshold of the votes.
type ThresholdQuorum struct {
	Threshold PercentageThreshold `json:"threshold"`
	Quorum    PercentageThreshold `json:"quorum"`
}

// Threshold is the passing rule of a proposal.
type Threshold struct {
	AbsolutePercentage *AbsolutePercentage `json:"absolute_percentage,omitempty"`
	ThresholdQuorum    *ThresholdQuorum    `json:"threshold_quorum,omitempty"`
}

// ValidateBasic performs basic threshold validity checks.
func (t *Threshold) ValidateBasic() error {
	switch {
	case t.AbsolutePercentage != nil && t.ThresholdQuorum != nil:
		return fmt.Errorf("threshold has multiple fields set")
	case t.AbsolutePercentage != nil:
		return t.AbsolutePercentage.Percentage.ValidateBasic()
	case t.ThresholdQuorum != nil:
		if err := t.ThresholdQuorum.Threshold.ValidateBasic(); err != nil {
			return fmt.Errorf("threshold: %w", err)
		}
		if err := t.ThresholdQuorum.Quorum.ValidateBasic(); err != nil {
			return fmt.Errorf("quorum: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("threshold has no fields set")
	}
}

// PrettyPrint writes a pretty-printed representation of Threshold to the
// given writer.
func (t Threshold) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	switch {
	case t.AbsolutePercentage != nil:
		fmt.Fprintf(w, "%sAbsolute percentage: %s\n", prefix, t.AbsolutePercentage.Percentage)
	case t.ThresholdQuorum != nil:
		fmt.Fprintf(w, "%sThreshold: %s\n", prefix, t.ThresholdQuorum.Threshold)
		fmt.Fprintf(w, "%sQuorum:    %s\n", prefix, t.ThresholdQuorum.Quorum)
	default:
		fmt.Fprintf(w, "%s[invalid threshold]\n", prefix)
	}
}

// Timestamp is a point in time in nanoseconds since the unix epoch.
//
// It serializes to JSON as a decimal string.
type Timestamp uint64

// MarshalJSON encodes a Timestamp as a JSON string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(t), 10))
}

// UnmarshalJSON decodes a JSON string into a Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp: expected a string")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp '%s': %w", s, err)
	}
	*t = Timestamp(n)
	return nil
}

// BlockInfo identifies the chain block against which state is evaluated.
type BlockInfo struct {
	Height  uint64    `json:"height"`
	Time    Timestamp `json:"time"`
	ChainID string    `json:"chain_id"`
}

// Expiration is the point at which voting on a proposal ends.
type Expiration struct {
	AtHeight *uint64    `json:"at_height,omitempty"`
	AtTime   *Timestamp `json:"at_time,omitempty"`
	Never    *struct{}  `json:"never,omitempty"`
}

// ExpiresAtHeight returns an expiration at the given block height.
func ExpiresAtHeight(h uint64) Expiration {
	return Expiration{AtHeight: &h}
}

// ExpiresAtTime returns an expiration at the given time.
func ExpiresAtTime(t Timestamp) Expiration {
	return Expiration{AtTime: &t}
}

// ExpiresNever returns an expiration that never happens.
func ExpiresNever() Expiration {
	return Expiration{Never: &struct{}{}}
}

// IsExpired returns true iff the expiration has been reached at block.
func (e *Expiration) IsExpired(block *BlockInfo) bool {
	switch {
	case e.AtHeight != nil:
		return block.Height >= *e.AtHeight
	case e.AtTime != nil:
		return block.Time >= *e.AtTime
	default:
		return false
	}
}

// ValidateBasic checks that exactly one kind of expiration is set.
func (e *Expiration) ValidateBasic() error {
	var n int
	if e.AtHeight != nil {
		n++
	}
	if e.AtTime != nil {
		n++
	}
	if e.Never != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("expiration must have exactly one field set (has %d)", n)
	}
	return nil
}

// String returns a string representation of an Expiration.
func (e Expiration) String() string {
	switch {
	case e.AtHeight != nil:
		return fmt.Sprintf("at height %d", *e.AtHeight)
	case e.AtTime != nil:
		return fmt.Sprintf("at time %d", uint64(*e.AtTime))
	default:
		return "never"
	}
}

// Duration is a span of blocks or seconds.
type Duration struct {
	Height *uint64 `json:"height,omitempty"`
	Time   *uint64 `json:"time,omitempty"`
}

// ValidateBasic checks that exactly one kind of duration is set.
func (d *Duration) ValidateBasic() error {
	if (d.Height == nil) == (d.Time == nil) {
		return fmt.Errorf("duration must have exactly one of height or time set")
	}
	return nil
}

// Votes is the tally of votes cast on a proposal.
type Votes struct {
	Yes     quantity.Quantity `json:"yes"`
	No      quantity.Quantity `json:"no"`
	Abstain quantity.Quantity `json:"abstain"`
}

// Total returns the sum of all votes cast.
func (v *Votes) Total() *quantity.Quantity {
	total := v.Yes.Clone()
	_ = total.Add(&v.No)
	_ = total.Add(&v.Abstain)
	return total
}

// Add records power towards the given vote.
func (v *Votes) Add(vote Vote, power *quantity.Quantity) error {
	switch vote {
	case VoteYes:
		return v.Yes.Add(power)
	case VoteNo:
		return v.No.Add(power)
	case VoteAbstain:
		return v.Abstain.Add(power)
	default:
		return fmt.Errorf("invalid vote: %d", uint8(vote))
	}
}

// PrettyPrint writes a pretty-printed representation of Votes to the given
// writer.
func (v Votes) PrettyPrint(ctx context.Context, prefix string, w io.Writer) {
	fmt.Fprintf(w, "%sYes:     %s\n", prefix, v.Yes)
	fmt.Fprintf(w, "%sNo:      %s\n", prefix, v.No)
	fmt.Fprintf(w, "%sAbstain: %s\n", prefix, v.Abstain)
}

// CheckedDepositInfo describes the deposit required to create a proposal.
type CheckedDepositInfo struct {
	Token                 string            `json:"token"`
	Deposit               quantity.Quantity `json:"deposit"`
	RefundFailedProposals bool              `json:"refund_failed_proposals"`
}

var (
	_ prettyprint.PrettyPrinter = Threshold{}
	_ prettyprint.PrettyPrinter = Votes{}
)
