package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/promptinfra/internal/ir"
)

// Backend persists deployment records.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Put stores rec, replacing any record with the same ID.
	Put(ctx context.Context, rec ir.DeploymentRecord) error
	// Scan opens a cursor over the records present now.
	Scan(ctx context.Context) (Cursor, error)
}

// Cursor yields records one at a time. Next returns ok=false at the end.
type Cursor interface {
	Next(ctx context.Context) (rec ir.DeploymentRecord, ok bool, err error)
	Close() error
}

// ErrInvalidRecord is returned by Record for records that cannot be stored.
var ErrInvalidRecord = errors.New("invalid deployment record")

// Ledger is the deployment ledger.
type Ledger struct {
	backend Backend
	logger  *slog.Logger
}

// New builds a Ledger over backend. A nil logger uses slog.Default().
func New(backend Backend, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{backend: backend, logger: logger}
}

// Backend returns the underlying backend name.
func (l *Ledger) Backend() string { return l.backend.Name() }

// Record stores rec under rec.ID, replacing any existing record.
func (l *Ledger) Record(ctx context.Context, rec ir.DeploymentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty deployment id", ErrInvalidRecord)
	}
	if rec.CreatedAt.IsZero() {
		return fmt.Errorf("%w: %s has no created_at", ErrInvalidRecord, rec.ID)
	}
	if rec.Version == "" {
		rec.Version = ir.RecordVersion
	}

	if err := l.backend.Put(ctx, rec); err != nil {
		return fmt.Errorf("ledger %s: record %s: %w", l.backend.Name(), rec.ID, err)
	}
	l.logger.Debug("deployment recorded", "backend", l.backend.Name(), "deployment_id", rec.ID)
	return nil
}

// ListAll returns a cursor over every record persisted when ListAll was
// called. Open errors surface from Records.Err.
func (l *Ledger) ListAll(ctx context.Context) *Records {
	cur, err := l.backend.Scan(ctx)
	if err != nil {
		err = fmt.Errorf("ledger %s: scan: %w", l.backend.Name(), err)
	}
	return &Records{ctx: ctx, cur: cur, err: err}
}

// Getter is implemented by backends that can look up one record without a
// scan.
type Getter interface {
	Get(ctx context.Context, id string) (ir.DeploymentRecord, bool, error)
}

// Find returns the record with id. Backends implementing Getter are asked
// directly; others are scanned through ListAll.
func (l *Ledger) Find(ctx context.Context, id string) (ir.DeploymentRecord, bool, error) {
	if g, ok := l.backend.(Getter); ok {
		return g.Get(ctx, id)
	}

	records := l.ListAll(ctx)
	defer records.Close()

	for records.Next() {
		if rec := records.Record(); rec.ID == id {
			return rec, true, nil
		}
	}
	return ir.DeploymentRecord{}, false, records.Err()
}

// Records is a lazy, finite, single-pass cursor. Once exhausted it yields
// nothing more.
type Records struct {
	ctx  context.Context
	cur  Cursor
	rec  ir.DeploymentRecord
	err  error
	done bool
}

// Next advances the cursor. It returns false when records are exhausted or
// an error occurred.
func (r *Records) Next() bool {
	if r.done || r.err != nil || r.cur == nil {
		return false
	}
	rec, ok, err := r.cur.Next(r.ctx)
	if err != nil {
		r.err = err
		r.finish()
		return false
	}
	if !ok {
		r.finish()
		return false
	}
	r.rec = rec
	return true
}

// Record returns the current record.
func (r *Records) Record() ir.DeploymentRecord { return r.rec }

// Err returns the error that stopped iteration, if any.
func (r *Records) Err() error { return r.err }

// Close releases the cursor. Safe to call more than once.
func (r *Records) Close() error {
	if r.cur == nil || r.done {
		r.done = true
		return nil
	}
	return r.finish()
}

func (r *Records) finish() error {
	r.done = true
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}

// All adapts the cursor to a range-over-func sequence. Check Err after the
// loop.
func (r *Records) All() iter.Seq[ir.DeploymentRecord] {
	return func(yield func(ir.DeploymentRecord) bool) {
		for r.Next() {
			if !yield(r.Record()) {
				r.Close()
				return
			}
		}
	}
}

// Collect drains the cursor into a slice.
func (r *Records) Collect() ([]ir.DeploymentRecord, error) {
	var out []ir.DeploymentRecord
	for rec := range r.All() {
		out = append(out, rec)
	}
	return out, r.Err()
}

// Number is the set of field types SumField can total.
type Number interface {
	~int | ~int64 | ~float64
}

// SumField totals selector over records.
func SumField[N Number](records iter.Seq[ir.DeploymentRecord], selector func(ir.DeploymentRecord) N) N {
	var total N
	for rec := range records {
		total += selector(rec)
	}
	return total
}
