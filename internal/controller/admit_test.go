package controller

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cemaco/titlegen/internal/engine"
	"github.com/cemaco/titlegen/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFingerprint(t *testing.T) {
	item := engine.Item{
		SKU:          "123456",
		TituloOrigen: "TALADRO ELECTRICO 500W",
		Marca:        "Bosch",
		Categoria:    "Herramientas",
	}

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t, Fingerprint(item), Fingerprint(item))
	})

	t.Run("IgnoresSKU", func(t *testing.T) {
		other := item
		other.SKU = "999999"
		assert.Equal(t, Fingerprint(item), Fingerprint(other))
	})

	t.Run("WhitespaceInsensitive", func(t *testing.T) {
		other := item
		other.TituloOrigen = "  TALADRO   ELECTRICO  500W "
		assert.Equal(t, Fingerprint(item), Fingerprint(other))
	})

	t.Run("CaseSensitive", func(t *testing.T) {
		other := item
		other.TituloOrigen = "taladro electrico 500w"
		assert.NotEqual(t, Fingerprint(item), Fingerprint(other))
	})

	t.Run("ContentChangeChangesFingerprint", func(t *testing.T) {
		other := item
		other.Marca = "Makita"
		assert.NotEqual(t, Fingerprint(item), Fingerprint(other))
	})

	t.Run("FieldBoundariesMatter", func(t *testing.T) {
		a := engine.Item{TituloOrigen: "ab", Marca: "c"}
		b := engine.Item{TituloOrigen: "a", Marca: "bc"}
		assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	})
}

func TestDetector_Admit(t *testing.T) {
	ctx := context.Background()
	item := engine.Item{SKU: "123456", TituloOrigen: "TALADRO ELECTRICO 500W", Marca: "Bosch", Categoria: "Herramientas"}

	t.Run("UnknownSKU", func(t *testing.T) {
		st := newTestStore(t)
		d := NewDetector(st, time.Hour)

		decision, err := d.Admit(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, DecisionProcess, decision)

		job, err := st.GetJob(ctx, item.SKU)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, job.Status)
		assert.Equal(t, Fingerprint(item), job.HashInput)
	})

	t.Run("UnchangedDone", func(t *testing.T) {
		st := newTestStore(t)
		d := NewDetector(st, time.Hour)

		require.NoError(t, st.UpsertPending(ctx, item.SKU, Fingerprint(item)))
		require.NoError(t, st.MarkDone(ctx, item.SKU, "T", "L", nil))

		decision, err := d.Admit(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, DecisionSkip, decision)

		job, err := st.GetJob(ctx, item.SKU)
		require.NoError(t, err)
		assert.Equal(t, store.StatusDone, job.Status, "skip has no side effect")
	})

	t.Run("ChangedDone", func(t *testing.T) {
		st := newTestStore(t)
		d := NewDetector(st, time.Hour)

		require.NoError(t, st.UpsertPending(ctx, item.SKU, "old-hash"))
		require.NoError(t, st.MarkDone(ctx, item.SKU, "T", "L", nil))

		decision, err := d.Admit(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, DecisionProcess, decision)

		job, err := st.GetJob(ctx, item.SKU)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, job.Status)
		assert.Equal(t, Fingerprint(item), job.HashInput)
		assert.Equal(t, "T", job.OptimizedTitle, "previous output kept until new result")
	})

	t.Run("UnchangedError", func(t *testing.T) {
		st := newTestStore(t)
		d := NewDetector(st, time.Hour)

		require.NoError(t, st.UpsertPending(ctx, item.SKU, Fingerprint(item)))
		require.NoError(t, st.MarkItemError(ctx, item.SKU, "boom", 1))

		decision, err := d.Admit(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, DecisionProcess, decision, "errored jobs are retried")
	})

	t.Run("UnchangedPending", func(t *testing.T) {
		st := newTestStore(t)
		d := NewDetector(st, time.Hour)

		require.NoError(t, st.UpsertPending(ctx, item.SKU, Fingerprint(item)))

		decision, err := d.Admit(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, DecisionProcess, decision)
	})

	t.Run("FreshProcessingSkipped", func(t *testing.T) {
		st := newTestStore(t)
		d := NewDetector(st, time.Hour)

		require.NoError(t, st.UpsertPending(ctx, item.SKU, Fingerprint(item)))
		require.NoError(t, st.MarkProcessing(ctx, []string{item.SKU}))

		decision, err := d.Admit(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, DecisionSkip, decision, "in-flight job is not double-dispatched")
	})

	t.Run("StaleProcessingReadmitted", func(t *testing.T) {
		st := newTestStore(t)
		d := NewDetector(st, time.Nanosecond)

		require.NoError(t, st.UpsertPending(ctx, item.SKU, Fingerprint(item)))
		require.NoError(t, st.MarkProcessing(ctx, []string{item.SKU}))
		time.Sleep(5 * time.Millisecond)

		decision, err := d.Admit(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, DecisionProcess, decision)

		job, err := st.GetJob(ctx, item.SKU)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, job.Status)
	})
}
