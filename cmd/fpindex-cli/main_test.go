package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMustParseHashesSplitsTrimsAndSkipsBlanks(t *testing.T) {
	require.Equal(t, []uint32{1, 2, 3}, mustParseHashes("1,2,3"))
	require.Equal(t, []uint32{10, 20}, mustParseHashes(" 10 , 20 "))
	require.Equal(t, []uint32{}, mustParseHashes(""))
}

func TestMustParseUint32ParsesValidInput(t *testing.T) {
	require.Equal(t, uint32(42), mustParseUint32("42"))
	require.Equal(t, uint32(0), mustParseUint32("0"))
}
