package oplog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/internal/oplog"
)

func openTestLog(t *testing.T) *oplog.Oplog {
	t.Helper()
	dir := directory.NewMemory()
	o, err := oplog.Open(context.Background(), dir, "control.db", nil)
	require.NoError(t, err)
	return o
}

func TestWriteAssignsMonotonicOpIds(t *testing.T) {
	ctx := context.Background()
	o := openTestLog(t)

	last, err := o.Write(ctx, 100, []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{10, 20}),
		oplog.InsertOrUpdate(2, []uint32{30}),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)

	last, err = o.Write(ctx, 101, []oplog.Op{oplog.DeleteOp(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)

	got, err := o.GetLastOpId(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), got)
}

func TestReadReplaysEntriesInOrder(t *testing.T) {
	ctx := context.Background()
	o := openTestLog(t)

	_, err := o.Write(ctx, 1, []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{10}),
		oplog.InsertOrUpdate(2, []uint32{20}),
		oplog.SetAttribute("name", "music"),
	})
	require.NoError(t, err)

	entries, err := o.Read(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, uint64(1), entries[0].OpID)
	require.Equal(t, oplog.KindInsertOrUpdate, entries[0].Op.Kind)
	require.Equal(t, uint32(1), entries[0].Op.DocID)

	require.Equal(t, oplog.KindSetAttribute, entries[2].Op.Kind)
	require.Equal(t, "music", entries[2].Op.AttrValue)

	entries, err = o.Read(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(2), entries[0].OpID)
}

func TestTruncateRemovesOldEntries(t *testing.T) {
	ctx := context.Background()
	o := openTestLog(t)

	_, err := o.Write(ctx, 1, []oplog.Op{
		oplog.InsertOrUpdate(1, []uint32{10}),
		oplog.InsertOrUpdate(2, []uint32{20}),
	})
	require.NoError(t, err)

	require.NoError(t, o.Truncate(ctx, 1))

	entries, err := o.Read(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(2), entries[0].OpID)
}

func TestReplicationSlotLifecycle(t *testing.T) {
	ctx := context.Background()
	o := openTestLog(t)

	require.NoError(t, o.CreateReplicationSlot(ctx, "downstream-a"))
	require.Error(t, o.CreateReplicationSlot(ctx, "downstream-a"))

	require.NoError(t, o.UpdateReplicationSlot(ctx, "downstream-a", 42))
	require.Error(t, o.UpdateReplicationSlot(ctx, "missing-slot", 1))

	slots, err := o.ListReplicationSlots(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), slots["downstream-a"])

	require.NoError(t, o.DeleteReplicationSlot(ctx, "downstream-a"))
	require.Error(t, o.DeleteReplicationSlot(ctx, "downstream-a"))
}
