package annotation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nitro/lazytemplate/internal/domain"
)

func TestModelCommitDrag(t *testing.T) {
	t.Run("Should normalize a backwards drag", func(t *testing.T) {
		t.Parallel()
		m := New()
		m.BeginDrag(domain.Point{X: 100, Y: 100})
		m.Drag(domain.Point{X: 80, Y: 90})
		pendingRegion, ok := m.PendingRegion()
		require.True(t, ok)
		require.Equal(t, Region{X: 100, Y: 100, Width: -20, Height: -10}, pendingRegion)

		entry, err := m.CommitDrag(domain.Point{X: 60, Y: 80}, "Total", "field")
		require.NoError(t, err)
		require.Equal(t, domain.NewGeometric("Total", domain.KindField, domain.Rect{X: 60, Y: 80, Width: 40, Height: 20}), entry)
		require.False(t, m.Pending())
	})

	t.Run("Should discard a small drag", func(t *testing.T) {
		t.Parallel()
		m := New()
		m.BeginDrag(domain.Point{X: 10, Y: 10})
		_, err := m.CommitDrag(domain.Point{X: 12, Y: 40}, "Total", "field")
		require.ErrorIs(t, err, ErrTooSmall)
		require.False(t, m.Pending())
		require.Equal(t, 0, m.Len())
	})

	t.Run("Should fail without a drag in progress", func(t *testing.T) {
		t.Parallel()
		m := New()
		m.Drag(domain.Point{X: 40, Y: 40})
		_, ok := m.PendingRegion()
		require.False(t, ok)
		_, err := m.CommitDrag(domain.Point{X: 40, Y: 40}, "Total", "field")
		require.ErrorIs(t, err, ErrNoPending)
	})

	t.Run("Should drop the drag on reset", func(t *testing.T) {
		t.Parallel()
		m := New()
		m.BeginDrag(domain.Point{X: 10, Y: 10})
		m.Reset()
		_, err := m.CommitDrag(domain.Point{X: 100, Y: 100}, "Total", "field")
		require.ErrorIs(t, err, ErrNoPending)
	})
}

func TestModelCommitSelection(t *testing.T) {
	m := New()
	m.BeginDrag(domain.Point{X: 10, Y: 10})
	m.Select("ACME Corp")
	_, ok := m.PendingRegion()
	require.False(t, ok)

	_, err := m.CommitSelection("vendor")
	require.ErrorIs(t, err, ErrInvalidType)
	require.False(t, m.Pending())

	m.Select("ACME Corp")
	entry, err := m.CommitSelection("issuer")
	require.NoError(t, err)
	require.Equal(t, domain.NewTextual("ACME Corp", domain.KindIssuer), entry)

	m.Select("ACME Corp")
	_, err = m.CommitSelection("issuer")
	require.ErrorIs(t, err, ErrDuplicate)
	require.Equal(t, 1, m.Len())
}
