// Package keyformat implements typed key layouts for ordered key-value
// stores.
package keyformat

import (
	"encoding/binary"
	"fmt"
)

const varSize = -1

// KeyFormat is a key formatting helper to be used together with key-value
// backends for constructing keys.
//
// Fixed-size integer elements are encoded big-endian so that keys sort in
// numeric order under byte-wise comparison.
type KeyFormat struct {
	// prefix is the one-byte key prefix that denotes the type of the key.
	prefix byte
	// layout is a list of bytes sizes of all elements in the key format.
	layout []int
	// size is the total size of the fixed-size elements in bytes.
	size int
}

// New constructs a new key format.
//
// Supported layout elements are uint64 (8 bytes) and []byte or string
// (variable size). Only the last element may be variable-sized.
func New(prefix byte, layout ...interface{}) *KeyFormat {
	kf := &KeyFormat{
		prefix: prefix,
		layout: make([]int, len(layout)),
	}

	for i, item := range layout {
		size := getSize(item)
		if size == varSize && i != len(layout)-1 {
			panic("key format: only the last element may be variable-sized")
		}
		if size != varSize {
			kf.size += size
		}
		kf.layout[i] = size
	}

	return kf
}

// Prefix returns the key prefix byte.
func (k *KeyFormat) Prefix() byte {
	return k.prefix
}

// Size returns the minimum size in bytes of the resulting key.
func (k *KeyFormat) Size() int {
	return 1 + k.size
}

// Encode encodes values into a key.
//
// You can pass either the same amount of values as specified in the layout
// or less. In case less values are specified this will generate a shorter
// key containing only the specified values, usable as an iteration prefix.
func (k *KeyFormat) Encode(values ...interface{}) []byte {
	if len(values) > len(k.layout) {
		panic("key format: number of values greater than layout")
	}

	result := []byte{k.prefix}
	for i, v := range values {
		switch t := v.(type) {
		case uint64:
			result = binary.BigEndian.AppendUint64(result, t)
		case *uint64:
			result = binary.BigEndian.AppendUint64(result, *t)
		case []byte:
			if k.layout[i] != varSize {
				panic(fmt.Sprintf("key format: element %d is not variable-sized", i))
			}
			result = append(result, t...)
		case string:
			if k.layout[i] != varSize {
				panic(fmt.Sprintf("key format: element %d is not variable-sized", i))
			}
			result = append(result, t...)
		default:
			panic(fmt.Sprintf("key format: unsupported type: %T", t))
		}
	}

	return result
}

// Decode decodes a key into its individual values.
//
// Returns false and doesn't modify the passed values if the key prefix
// doesn't match.
func (k *KeyFormat) Decode(data []byte, values ...interface{}) bool {
	if len(data) == 0 || data[0] != k.prefix {
		return false
	}
	if len(values) > len(k.layout) {
		panic("key format: number of values greater than layout")
	}
	if len(data) < k.Size() {
		panic("key format: malformed input")
	}

	offset := 1
	for i, v := range values {
		elemLen := k.layout[i]
		if elemLen == varSize {
			elemLen = len(data) - k.Size()
		}
		buf := data[offset : offset+elemLen]
		offset += elemLen

		switch t := v.(type) {
		case *uint64:
			*t = binary.BigEndian.Uint64(buf)
		case *[]byte:
			*t = append([]byte{}, buf...)
		case *string:
			*t = string(buf)
		default:
			panic(fmt.Sprintf("key format: unsupported type: %T", t))
		}
	}

	return true
}

func getSize(l interface{}) int {
	switch l.(type) {
	case uint64, *uint64:
		return 8
	case []byte, string:
		return varSize
	default:
		panic(fmt.Sprintf("key format: unsupported type: %T", l))
	}
}
