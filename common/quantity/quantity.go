// Package quantity implements an unsigned 128-bit quantity type, matching
// the Uint128 used for voting power and deposits by CosmWasm contracts.
//
// Quantities serialize to JSON as base-10 strings and to CBOR as big-endian
// byte strings.
package quantity

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// Bits is the maximum width of a quantity.
const Bits = 128

var (
	// ErrInvalidQuantity is the error returned on malformed arguments.
	ErrInvalidQuantity = errors.New("quantity: invalid quantity")

	// ErrOverflow is the error returned when a result does not fit in
	// 128 bits.
	ErrOverflow = errors.New("quantity: overflow")

	// ErrInsufficientBalance is the error returned when an operation
	// would result in a negative quantity.
	ErrInsufficientBalance = errors.New("quantity: insufficient balance")

	_ encoding.BinaryMarshaler   = Quantity{}
	_ encoding.BinaryUnmarshaler = (*Quantity)(nil)
	_ json.Marshaler             = Quantity{}
	_ json.Unmarshaler           = (*Quantity)(nil)
)

// Quantity is an unsigned 128-bit quantity.
//
// The zero value is a valid quantity equal to zero.
type Quantity struct {
	inner big.Int
}

// NewQuantity creates a new Quantity, initialized to zero.
func NewQuantity() *Quantity {
	return &Quantity{}
}

// NewFromUint64 creates a new Quantity from an uint64.
func NewFromUint64(n uint64) *Quantity {
	var q Quantity
	q.inner.SetUint64(n)
	return &q
}

// Clone copies a Quantity.
func (q *Quantity) Clone() *Quantity {
	var tmp Quantity
	tmp.inner.Set(&q.inner)
	return &tmp
}

// FromBigInt sets the Quantity from a big.Int.
func (q *Quantity) FromBigInt(n *big.Int) error {
	if !isValid(n) {
		return ErrInvalidQuantity
	}
	q.inner.Set(n)
	return nil
}

// FromUint64 sets the Quantity from an uint64.
func (q *Quantity) FromUint64(n uint64) error {
	q.inner.SetUint64(n)
	return nil
}

// ToBigInt returns a copy of the Quantity as a big.Int.
func (q *Quantity) ToBigInt() *big.Int {
	return new(big.Int).Set(&q.inner)
}

// Add adds n to q, returning an error if the result would overflow.
func (q *Quantity) Add(n *Quantity) error {
	if n == nil {
		return ErrInvalidQuantity
	}
	var sum big.Int
	sum.Add(&q.inner, &n.inner)
	if sum.BitLen() > Bits {
		return ErrOverflow
	}
	q.inner.Set(&sum)
	return nil
}

// Sub subtracts exactly n from q, returning an error if q < n.
func (q *Quantity) Sub(n *Quantity) error {
	if n == nil {
		return ErrInvalidQuantity
	}
	if q.inner.Cmp(&n.inner) < 0 {
		return ErrInsufficientBalance
	}
	q.inner.Sub(&q.inner, &n.inner)
	return nil
}

// SaturatingSub returns q - n, or zero if n > q.
func (q *Quantity) SaturatingSub(n *Quantity) *Quantity {
	res := q.Clone()
	if err := res.Sub(n); err != nil {
		return NewQuantity()
	}
	return res
}

// Cmp returns -1 if q < n, 0 if q == n, and 1 if q > n.
func (q *Quantity) Cmp(n *Quantity) int {
	return q.inner.Cmp(&n.inner)
}

// IsZero returns true iff the quantity is zero.
func (q *Quantity) IsZero() bool {
	return q.inner.Sign() == 0
}

// String returns the base-10 representation of the quantity.
func (q Quantity) String() string {
	return q.inner.String()
}

// MarshalBinary encodes a Quantity into big-endian bytes.
func (q Quantity) MarshalBinary() ([]byte, error) {
	return q.inner.Bytes(), nil
}

// UnmarshalBinary decodes a byte slice into a Quantity.
func (q *Quantity) UnmarshalBinary(data []byte) error {
	if len(data) > Bits/8 {
		return ErrOverflow
	}
	q.inner.SetBytes(data)
	return nil
}

// MarshalText encodes a Quantity into its base-10 text form.
func (q Quantity) MarshalText() ([]byte, error) {
	return q.inner.MarshalText()
}

// UnmarshalText decodes a base-10 text form into a Quantity.
func (q *Quantity) UnmarshalText(text []byte) error {
	var n big.Int
	if _, ok := n.SetString(string(text), 10); !ok {
		return fmt.Errorf("%w: '%s'", ErrInvalidQuantity, text)
	}
	if n.Sign() < 0 {
		return fmt.Errorf("%w: negative value '%s'", ErrInvalidQuantity, text)
	}
	if n.BitLen() > Bits {
		return ErrOverflow
	}
	q.inner.Set(&n)
	return nil
}

// MarshalJSON encodes a Quantity as a JSON string.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.inner.String())
}

// UnmarshalJSON decodes a JSON string into a Quantity.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: expected a string", ErrInvalidQuantity)
	}
	return q.UnmarshalText([]byte(s))
}

func isValid(n *big.Int) bool {
	return n != nil && n.Sign() >= 0 && n.BitLen() <= Bits
}
