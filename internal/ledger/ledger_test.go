package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/store"
	"github.com/roach88/promptinfra/internal/testutil"
)

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func record(id, prompt string, resources int, cost ir.USD) ir.DeploymentRecord {
	return ir.DeploymentRecord{
		ID:                   id,
		CreatedAt:            t0,
		Prompt:               prompt,
		ResourceCount:        resources,
		EstimatedMonthlyCost: cost,
		Tags:                 map[string]string{"deployment_id": id, "source": "promptinfra"},
		Status:               ir.StatusGenerated,
		Version:              ir.RecordVersion,
	}
}

// backends returns a fresh instance of every backend.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	file, err := NewFileBackend(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dyn, err := NewDynamoBackend(testutil.NewDynamoTable("deployment_id", 2), "deployments", time.Second)
	require.NoError(t, err)

	return map[string]Backend{
		"file":     file,
		"sqlite":   NewSQLiteBackend(db),
		"dynamodb": dyn,
	}
}

func TestLedger_RecordThenList(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := New(backend, nil)
			ctx := context.Background()

			require.NoError(t, l.Record(ctx, record("a", "create an EC2 instance", 1, ir.Cents(850))))
			require.NoError(t, l.Record(ctx, record("b", "create a VPC", 2, 0)))

			got, err := l.ListAll(ctx).Collect()
			require.NoError(t, err)
			require.Len(t, got, 2)

			byID := map[string]ir.DeploymentRecord{}
			for _, r := range got {
				byID[r.ID] = r
			}
			assert.Equal(t, "create an EC2 instance", byID["a"].Prompt)
			assert.Equal(t, ir.Cents(850), byID["a"].EstimatedMonthlyCost)
			assert.Equal(t, 2, byID["b"].ResourceCount)
			assert.True(t, t0.Equal(byID["a"].CreatedAt))
			assert.Equal(t, "promptinfra", byID["a"].Tags["source"])
		})
	}
}

func TestLedger_UpsertReplacesWholeRecord(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := New(backend, nil)
			ctx := context.Background()

			a := record("dep-1", "create an EC2 instance", 1, ir.Cents(850))
			a.CacheKey = ir.DeriveCacheKey(a.Prompt, "")
			b := ir.DeploymentRecord{
				ID:            "dep-1",
				CreatedAt:     t0.Add(time.Minute),
				Prompt:        "create a VPC",
				ResourceCount: 3,
				Tags:          map[string]string{"cost_center": "platform"},
				Status:        ir.StatusPublished,
				Version:       ir.RecordVersion,
			}

			require.NoError(t, l.Record(ctx, a))
			require.NoError(t, l.Record(ctx, b))

			got, err := l.ListAll(ctx).Collect()
			require.NoError(t, err)
			require.Len(t, got, 1)

			r := got[0]
			assert.Equal(t, b.Prompt, r.Prompt)
			assert.Equal(t, b.ResourceCount, r.ResourceCount)
			assert.Equal(t, ir.USD(0), r.EstimatedMonthlyCost)
			assert.Equal(t, b.Tags, r.Tags)
			assert.Equal(t, b.Status, r.Status)
			assert.Empty(t, r.CacheKey)
		})
	}
}

func TestLedger_ListAllIsSinglePass(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := New(backend, nil)
			ctx := context.Background()
			require.NoError(t, l.Record(ctx, record("a", "p", 1, 0)))

			records := l.ListAll(ctx)
			first, err := records.Collect()
			require.NoError(t, err)
			assert.Len(t, first, 1)

			assert.False(t, records.Next(), "exhausted cursor yields nothing")
			again, err := records.Collect()
			require.NoError(t, err)
			assert.Empty(t, again)
		})
	}
}

func TestLedger_ListAllEmpty(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := New(backend, nil).ListAll(context.Background()).Collect()
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestLedger_Find(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := New(backend, nil)
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, l.Record(ctx, record(id, "prompt "+id, 1, 0)))
			}

			rec, found, err := l.Find(ctx, "b")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "prompt b", rec.Prompt)

			_, found, err = l.Find(ctx, "zzz")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

// scanless hides Scan so Find must go through Getter.
type scanless struct {
	Backend
	Getter
}

func (scanless) Scan(context.Context) (Cursor, error) {
	return nil, errors.New("scan not allowed")
}

func TestLedger_FindUsesDirectLookup(t *testing.T) {
	all := backends(t)
	for _, name := range []string{"file", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			backend := all[name]
			getter, ok := backend.(Getter)
			require.True(t, ok)
			ctx := context.Background()
			require.NoError(t, New(backend, nil).Record(ctx, record("a", "create an EC2 instance", 1, ir.Cents(850))))

			l := New(scanless{Backend: backend, Getter: getter}, nil)
			rec, found, err := l.Find(ctx, "a")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, ir.Cents(850), rec.EstimatedMonthlyCost)

			_, found, err = l.Find(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestLedger_ConcurrentRecordAndList(t *testing.T) {
	const (
		writers    = 100
		identities = 10
	)

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := New(backend, nil)
			ctx := context.Background()

			var wg sync.WaitGroup
			wg.Add(writers * 2)
			for i := 0; i < writers; i++ {
				go func(i int) {
					defer wg.Done()
					id := fmt.Sprintf("dep-%d", i%identities)
					assert.NoError(t, l.Record(ctx, record(id, fmt.Sprintf("prompt %d", i), i, ir.Cents(int64(i)))))
				}(i)
				go func() {
					defer wg.Done()
					recs, err := l.ListAll(ctx).Collect()
					assert.NoError(t, err)
					assert.LessOrEqual(t, len(recs), identities)
				}()
			}
			wg.Wait()

			got, err := l.ListAll(ctx).Collect()
			require.NoError(t, err)
			require.Len(t, got, identities)
			for _, rec := range got {
				// Each surviving record is one writer's whole record.
				assert.Equal(t, fmt.Sprintf("prompt %d", rec.ResourceCount), rec.Prompt)
				assert.Equal(t, ir.Cents(int64(rec.ResourceCount)), rec.EstimatedMonthlyCost)
				assert.Equal(t, rec.ID, fmt.Sprintf("dep-%d", rec.ResourceCount%identities))
			}
		})
	}
}

func TestLedger_RecordValidation(t *testing.T) {
	l := New(backends(t)["file"], nil)
	ctx := context.Background()

	err := l.Record(ctx, ir.DeploymentRecord{CreatedAt: t0})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	err = l.Record(ctx, ir.DeploymentRecord{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestLedger_RecordDefaultsVersion(t *testing.T) {
	l := New(backends(t)["file"], nil)
	ctx := context.Background()

	rec := record("a", "p", 1, 0)
	rec.Version = ""
	require.NoError(t, l.Record(ctx, rec))

	got, found, err := l.Find(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.RecordVersion, got.Version)
}

func TestSumField(t *testing.T) {
	l := New(backends(t)["file"], nil)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, record("a", "p", 1, ir.Cents(850))))
	require.NoError(t, l.Record(ctx, record("b", "p", 4, ir.Cents(3400))))
	require.NoError(t, l.Record(ctx, record("c", "p", 0, ir.Cents(200))))

	recs, err := l.ListAll(ctx).Collect()
	require.NoError(t, err)

	all := func(yield func(ir.DeploymentRecord) bool) {
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}

	resources := SumField(all, func(r ir.DeploymentRecord) int { return r.ResourceCount })
	cost := SumField(all, func(r ir.DeploymentRecord) ir.USD { return r.EstimatedMonthlyCost })
	assert.Equal(t, 5, resources)
	assert.Equal(t, "44.50", cost.String())
}

func TestSumField_OverCursor(t *testing.T) {
	l := New(backends(t)["sqlite"], nil)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, record("a", "p", 2, 0)))
	require.NoError(t, l.Record(ctx, record("b", "p", 3, 0)))

	records := l.ListAll(ctx)
	total := SumField(records.All(), func(r ir.DeploymentRecord) int { return r.ResourceCount })
	require.NoError(t, records.Err())
	assert.Equal(t, 5, total)
}
