package varint_test

import (
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/pkg/varint"
)

func TestRoundTripUint64(t *testing.T) {
	f := fuzz.New()
	var values []uint64
	f.NilChance(0).NumElements(200, 200).Fuzz(&values)

	for _, v := range values {
		buf := varint.PutUint64(nil, v)
		require.Len(t, buf, varint.Size64(v))

		got, n, err := varint.Uint64(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestZero(t *testing.T) {
	buf := varint.PutUint32(nil, 0)
	require.Equal(t, []byte{0}, buf)

	v, n, err := varint.Uint32(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, uint32(0), v)
}

func TestTruncatedBufferErrors(t *testing.T) {
	buf := varint.PutUint64(nil, 1<<40)
	_, _, err := varint.Uint64(buf[:len(buf)-1])
	require.ErrorIs(t, err, varint.ErrOverflow)
}
