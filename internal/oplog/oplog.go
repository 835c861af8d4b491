// Package oplog implements the durable, ordered, monotonic log of index
// mutations (§4.E), backed by a tiny relational store — a pure-Go SQLite
// database opened through the directory facade, one table keyed by a
// server-assigned monotonic opId.
package oplog

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"

	"github.com/iamNilotpal/fpindex/internal/directory"
	"github.com/iamNilotpal/fpindex/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS oplog (
	op_id INTEGER PRIMARY KEY AUTOINCREMENT,
	op_time INTEGER NOT NULL,
	op_data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS replication_slots (
	name TEXT PRIMARY KEY,
	last_acked_op_id INTEGER NOT NULL DEFAULT 0
);
`

// Oplog is a handle onto one index's operation log. Writes are serialized
// by mu; reads may proceed concurrently against the database driver.
type Oplog struct {
	db  *sql.DB
	log *zap.SugaredLogger

	mu sync.Mutex
}

// Open creates the oplog schema if needed and returns a ready handle. name
// is the database file name within dir (conventionally "control.db").
func Open(ctx context.Context, dir directory.Directory, name string, log *zap.SugaredLogger) (*Oplog, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	db, err := dir.OpenDatabase(name)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "creating oplog schema")
	}

	log.Infow("oplog opened", "database", name)
	return &Oplog{db: db, log: log}, nil
}

// Write appends batch in a single transaction with server-assigned
// monotonic opIds, and returns the highest id assigned. The batch is
// durable before Write returns.
func (o *Oplog) Write(ctx context.Context, opTime int64, batch []Op) (uint64, error) {
	if len(batch) == 0 {
		return o.GetLastOpId(ctx)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewOplogError(err, errors.ErrorCodeIO, "beginning oplog transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO oplog (op_time, op_data) VALUES (?, ?)`)
	if err != nil {
		return 0, errors.NewOplogError(err, errors.ErrorCodeIO, "preparing oplog insert")
	}
	defer stmt.Close()

	var lastID int64
	for _, op := range batch {
		data, err := marshalOp(op)
		if err != nil {
			return 0, errors.NewOplogError(err, errors.ErrorCodeIO, "marshaling op").WithDetail("kind", op.Kind)
		}

		res, err := stmt.ExecContext(ctx, opTime, data)
		if err != nil {
			return 0, errors.NewOplogError(err, errors.ErrorCodeIO, "inserting op")
		}
		lastID, err = res.LastInsertId()
		if err != nil {
			return 0, errors.NewOplogError(err, errors.ErrorCodeIO, "reading assigned op_id")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewOplogError(err, errors.ErrorCodeIO, "committing oplog transaction")
	}

	return uint64(lastID), nil
}

// Read returns up to limit entries with opId > afterOpID, ascending by
// opId. Used for crash-recovery replay.
func (o *Oplog) Read(ctx context.Context, afterOpID uint64, limit int) ([]Entry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT op_id, op_data FROM oplog WHERE op_id > ? ORDER BY op_id ASC LIMIT ?`,
		afterOpID, limit,
	)
	if err != nil {
		return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "reading oplog entries").WithOpId(afterOpID)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "scanning oplog row")
		}
		op, err := unmarshalOp(data)
		if err != nil {
			return nil, errors.NewOplogError(err, errors.ErrorCodeIndexCorrupted, "decoding op payload").WithOpId(uint64(id))
		}
		entries = append(entries, Entry{OpID: uint64(id), Op: op})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "iterating oplog rows")
	}

	return entries, nil
}

// GetLastOpId returns the newest opId in the log, or 0 if empty.
func (o *Oplog) GetLastOpId(ctx context.Context) (uint64, error) {
	var id sql.NullInt64
	err := o.db.QueryRowContext(ctx, `SELECT MAX(op_id) FROM oplog`).Scan(&id)
	if err != nil {
		return 0, errors.NewOplogError(err, errors.ErrorCodeIO, "reading last op_id")
	}
	if !id.Valid {
		return 0, nil
	}
	return uint64(id.Int64), nil
}

// Truncate deletes every entry with opId <= uptoOpID. Implementations are
// free to retain history indefinitely; callers only call this once the
// corresponding segment is durably sealed on disk.
func (o *Oplog) Truncate(ctx context.Context, uptoOpID uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.db.ExecContext(ctx, `DELETE FROM oplog WHERE op_id <= ?`, uptoOpID); err != nil {
		return errors.NewOplogError(err, errors.ErrorCodeIO, "truncating oplog").WithOpId(uptoOpID)
	}
	return nil
}

// CreateReplicationSlot registers a new named cursor at last-acked opId 0.
func (o *Oplog) CreateReplicationSlot(ctx context.Context, name string) error {
	_, err := o.db.ExecContext(ctx, `INSERT INTO replication_slots (name, last_acked_op_id) VALUES (?, 0)`, name)
	if err != nil {
		return errors.NewReplicationSlotExistsError(name)
	}
	return nil
}

// DeleteReplicationSlot removes a named cursor.
func (o *Oplog) DeleteReplicationSlot(ctx context.Context, name string) error {
	res, err := o.db.ExecContext(ctx, `DELETE FROM replication_slots WHERE name = ?`, name)
	if err != nil {
		return errors.NewOplogError(err, errors.ErrorCodeIO, "deleting replication slot").WithSlotName(name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewReplicationSlotMissingError(name)
	}
	return nil
}

// UpdateReplicationSlot advances name's last-acked opId.
func (o *Oplog) UpdateReplicationSlot(ctx context.Context, name string, ackedOpID uint64) error {
	res, err := o.db.ExecContext(ctx, `UPDATE replication_slots SET last_acked_op_id = ? WHERE name = ?`, ackedOpID, name)
	if err != nil {
		return errors.NewOplogError(err, errors.ErrorCodeIO, "updating replication slot").WithSlotName(name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewReplicationSlotMissingError(name)
	}
	return nil
}

// ListReplicationSlots returns every registered slot name and its
// last-acked opId.
func (o *Oplog) ListReplicationSlots(ctx context.Context) (map[string]uint64, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT name, last_acked_op_id FROM replication_slots`)
	if err != nil {
		return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "listing replication slots")
	}
	defer rows.Close()

	slots := make(map[string]uint64)
	for rows.Next() {
		var name string
		var acked int64
		if err := rows.Scan(&name, &acked); err != nil {
			return nil, errors.NewOplogError(err, errors.ErrorCodeIO, "scanning replication slot row")
		}
		slots[name] = uint64(acked)
	}
	return slots, rows.Err()
}
