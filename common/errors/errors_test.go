package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	errTestA = New("errors/test", 1, "test: first error")
	errTestB = New("errors/test", 2, "test: second error")
)

func TestCode(t *testing.T) {
	require := require.New(t)

	module, code := Code(nil)
	require.Equal("", module)
	require.EqualValues(CodeNoError, code)

	module, code = Code(errTestA)
	require.Equal("errors/test", module)
	require.EqualValues(1, code)

	module, code = Code(fmt.Errorf("wrapped: %w", errTestB))
	require.Equal("errors/test", module)
	require.EqualValues(2, code, "code should be found through wrapping")

	module, code = Code(fmt.Errorf("plain"))
	require.Equal(UnknownModule, module)
	require.EqualValues(1, code)
}

func TestWithContext(t *testing.T) {
	require := require.New(t)

	err := WithContext(errTestA, "proposal_id missing")
	require.True(Is(err, errTestA))
	require.False(Is(err, errTestB))
	require.Equal("test: first error: proposal_id missing", err.Error())
	require.Equal("proposal_id missing", Context(err))

	require.Equal(errTestA, WithContext(errTestA, ""), "empty context should not wrap")

	plain := fmt.Errorf("plain")
	wrapped := WithContext(plain, "ctx")
	require.True(Is(wrapped, plain))
	require.Equal("", Context(wrapped))
}

func TestFromCode(t *testing.T) {
	require := require.New(t)

	err := FromCode("errors/test", 1, errTestA.Error())
	require.Equal(errTestA, err, "exact message should map to the registered error")

	err = FromCode("errors/test", 2, "test: second error: some context")
	require.True(Is(err, errTestB))
	require.Equal("some context", Context(err))

	err = FromCode("errors/test", 42, "unregistered")
	require.Equal("unregistered", err.Error())
	module, code := Code(err)
	require.Equal("errors/test", module)
	require.EqualValues(42, code)
}

func TestNewPanics(t *testing.T) {
	require := require.New(t)

	require.Panics(func() { _ = New("errors/test", CodeNoError, "reserved") })
	require.Panics(func() { _ = New("errors/test", 1, "duplicate") })
}
