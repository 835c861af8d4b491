package ignite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/pkg/ignite"
	"github.com/iamNilotpal/fpindex/pkg/options"
)

func newTestInstance(t *testing.T) *ignite.Instance {
	t.Helper()
	inst, err := ignite.NewInstance(
		context.Background(), "ignite-test",
		options.WithDataDir(t.TempDir()),
		options.WithMaxStageSize(1_000_000),
	)
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close(context.Background()) })
	return inst
}

func TestInsertThenSearchRoundTrip(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	require.NoError(t, inst.Insert(ctx, "tracks", 1, []uint32{10, 20, 30}))
	require.NoError(t, inst.Insert(ctx, "tracks", 2, []uint32{20, 30}))

	results, err := inst.Search(ctx, "tracks", []uint32{20, 30}, ignite.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestDeleteHidesDocFromSearch(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	require.NoError(t, inst.Insert(ctx, "tracks", 1, []uint32{10}))
	require.NoError(t, inst.Delete(ctx, "tracks", 1))

	results, err := inst.Search(ctx, "tracks", []uint32{10}, ignite.SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchAgainstUnknownIndexFails(t *testing.T) {
	inst := newTestInstance(t)
	_, err := inst.Search(context.Background(), "missing", []uint32{1}, ignite.SearchOptions{})
	require.Error(t, err)
}

func TestCreateThenExistsAndList(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	exists, err := inst.Exists("catalog")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, inst.Create(ctx, "catalog"))

	exists, err = inst.Exists("catalog")
	require.NoError(t, err)
	require.True(t, exists)
	require.Contains(t, inst.List(), "catalog")
}

func TestSetAttributeDoesNotDisturbSearch(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	require.NoError(t, inst.SetAttribute(ctx, "tracks", "schema", "v1"))
	require.NoError(t, inst.Insert(ctx, "tracks", 1, []uint32{1}))

	results, err := inst.Search(ctx, "tracks", []uint32{1}, ignite.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
}
