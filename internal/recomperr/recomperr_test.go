package recomperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfExtractsKind(t *testing.T) {
	err := New(KindMissingEntrypoint, "no entrypoint symbol")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMissingEntrypoint, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindElfLoadFailed, cause, "opening ELF")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "opening ELF")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindElfLoadFailed, kind)
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(KindElfLoadFailed, nil, "msg"))
}

func TestUnknownOpcodeMessage(t *testing.T) {
	err := UnknownOpcode("vmulq.fmt", 0x80001234)
	assert.Contains(t, err.Error(), "vmulq.fmt")
	assert.Contains(t, err.Error(), "80001234")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindUnknownOpcode, kind)
}

func TestNestedBranchInDelaySlot(t *testing.T) {
	err := NestedBranchInDelaySlot(0x1004)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNestedBranchInDelaySlot, kind)
}

func TestKindStringUnknown(t *testing.T) {
	assert.Contains(t, Kind(999).String(), "Kind(999)")
}
