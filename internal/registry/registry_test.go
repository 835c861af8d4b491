package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/index"
	"github.com/iamNilotpal/fpindex/internal/oplog"
	"github.com/iamNilotpal/fpindex/internal/registry"
	"github.com/iamNilotpal/fpindex/pkg/errors"
	"github.com/iamNilotpal/fpindex/pkg/options"
)

// memFactory hands out one persistent *directory.MemDirectory per name, so
// repeated Get calls for the same name (across a Delete, say) see the same
// backend unless the registry actually tears it down.
func memFactory() registry.DirFactory {
	var mu sync.Mutex
	dirs := make(map[string]*directory.MemDirectory)
	return func(name string) (directory.Directory, error) {
		mu.Lock()
		defer mu.Unlock()
		if d, ok := dirs[name]; ok {
			return d, nil
		}
		d := directory.NewMemory()
		dirs[name] = d
		return d, nil
	}
}

func testOptions() options.Options {
	opts := options.NewDefaultOptions()
	opts.MaxStageSize = 1_000_000
	return opts
}

func TestGetWithoutCreateFailsForUnknownIndex(t *testing.T) {
	r := registry.NewWithFactory(testOptions(), zap.NewNop().Sugar(), memFactory())
	defer r.Close()

	_, err := r.Get(context.Background(), "catalog", false)
	require.Error(t, err)
	var idxErr *errors.IndexError
	require.ErrorAs(t, err, &idxErr)
}

func TestCreateThenGetReturnsSameIndexHandle(t *testing.T) {
	r := registry.NewWithFactory(testOptions(), zap.NewNop().Sugar(), memFactory())
	defer r.Close()

	require.NoError(t, r.Create(context.Background(), "catalog"))

	idx1, err := r.Get(context.Background(), "catalog", false)
	require.NoError(t, err)
	idx2, err := r.Get(context.Background(), "catalog", false)
	require.NoError(t, err)
	require.Same(t, idx1, idx2)

	require.NoError(t, idx1.Update(context.Background(), []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{42}),
	}))

	results, err := idx2.Search(context.Background(), []uint32{42}, index.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestDeleteClosesAndForgetsIndex(t *testing.T) {
	r := registry.NewWithFactory(testOptions(), zap.NewNop().Sugar(), memFactory())
	defer r.Close()

	require.NoError(t, r.Create(context.Background(), "catalog"))
	exists, err := r.Exists("catalog")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, r.Delete("catalog"))
	require.Empty(t, r.List())
}

func TestListReflectsOpenIndexes(t *testing.T) {
	r := registry.NewWithFactory(testOptions(), zap.NewNop().Sugar(), memFactory())
	defer r.Close()

	require.NoError(t, r.Create(context.Background(), "a"))
	require.NoError(t, r.Create(context.Background(), "b"))

	require.ElementsMatch(t, []string{"a", "b"}, r.List())
}
