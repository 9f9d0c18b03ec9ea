package annotation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nitro/lazytemplate/internal/domain"
)

func region(x, y, width, height float64) *Region {
	return &Region{X: x, Y: y, Width: width, Height: height}
}

func TestModelAddRejection(t *testing.T) {
	tests := []struct {
		message   string
		candidate Candidate
		expected  error
	}{
		{
			message:   "reject an unknown type",
			candidate: Candidate{Type: "line", Text: "Total"},
			expected:  ErrInvalidType,
		},
		{
			message:   "reject an empty type",
			candidate: Candidate{Field: "Total", Region: region(0, 0, 10, 10)},
			expected:  ErrInvalidType,
		},
		{
			message:   "reject an empty text",
			candidate: Candidate{Type: "keyword", Text: "   "},
			expected:  ErrEmptyValue,
		},
		{
			message:   "reject an empty field name",
			candidate: Candidate{Type: "field", Region: region(0, 0, 10, 10)},
			expected:  ErrEmptyValue,
		},
		{
			message:   "reject a field without region",
			candidate: Candidate{Type: "field", Field: "Total"},
			expected:  ErrEmptyValue,
		},
		{
			message:   "reject a narrow region",
			candidate: Candidate{Type: "field", Field: "Total", Region: region(0, 0, 4.9, 50)},
			expected:  ErrTooSmall,
		},
		{
			message:   "reject a short region",
			candidate: Candidate{Type: "field", Field: "Total", Region: region(0, 0, 50, 4)},
			expected:  ErrTooSmall,
		},
		{
			message:   "reject a small backwards region",
			candidate: Candidate{Type: "field", Field: "Total", Region: region(100, 100, -3, -40)},
			expected:  ErrTooSmall,
		},
		{
			message:   "reject a candidate carrying both variants",
			candidate: Candidate{Type: "field", Field: "Total", Text: "Total", Region: region(0, 0, 10, 10)},
			expected:  ErrMixedVariant,
		},
	}
	for _, tt := range tests {
		t.Run("Should "+tt.message, func(t *testing.T) {
			t.Parallel()
			m := New()
			_, err := m.Add(Candidate{Type: "issuer", Field: "Vendor", Region: region(1, 1, 20, 20)})
			require.NoError(t, err)
			before := m.Annotations()

			_, err = m.Add(tt.candidate)
			require.ErrorIs(t, err, tt.expected)
			require.Equal(t, before, m.Annotations())
		})
	}
}

func TestModelTooSmallMessage(t *testing.T) {
	m := New()
	_, err := m.Add(Candidate{Type: "field", Field: "Total", Region: region(0, 0, 4.9, 50)})
	require.ErrorIs(t, err, ErrTooSmall)
	require.EqualError(t, err, "region 4.9x50 is smaller than 5x5")
}

func TestModelAddGeometric(t *testing.T) {
	tests := []struct {
		region   Region
		expected domain.Rect
	}{
		{region: Region{X: 10, Y: 10, Width: 50, Height: 20}, expected: domain.Rect{X: 10, Y: 10, Width: 50, Height: 20}},
		{region: Region{X: 100, Y: 100, Width: -40, Height: -20}, expected: domain.Rect{X: 60, Y: 80, Width: 40, Height: 20}},
		{region: Region{X: 10.4, Y: 9.6, Width: 5, Height: 5}, expected: domain.Rect{X: 10, Y: 10, Width: 5, Height: 5}},
		{region: Region{X: 0.5, Y: 0.5, Width: 5.2, Height: 7.7}, expected: domain.Rect{X: 1, Y: 1, Width: 5, Height: 7}},
		{region: Region{X: 20, Y: 5, Width: -10.6, Height: 6}, expected: domain.Rect{X: 9, Y: 5, Width: 11, Height: 6}},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("Scenario %d", i), func(t *testing.T) {
			t.Parallel()
			m := New()
			entry, err := m.Add(Candidate{Type: "field", Field: " Total ", Region: &tt.region})
			require.NoError(t, err)
			require.Equal(t, domain.NewGeometric("Total", domain.KindField, tt.expected), entry)
			require.GreaterOrEqual(t, entry.Geometric.Width, 0)
			require.GreaterOrEqual(t, entry.Geometric.Height, 0)
			require.Equal(t, []domain.Annotation{entry}, m.Annotations())
		})
	}
}

func TestModelAddDuplicate(t *testing.T) {
	t.Run("Should reject a repeated field with different coordinates", func(t *testing.T) {
		t.Parallel()
		m := New()
		first, err := m.Add(Candidate{Type: "field", Field: "Total", Region: region(10, 10, 50, 20)})
		require.NoError(t, err)

		_, err = m.Add(Candidate{Type: "keyword", Field: "Total", Region: region(200, 300, 80, 40)})
		require.ErrorIs(t, err, ErrDuplicate)
		require.Equal(t, []domain.Annotation{first}, m.Annotations())
	})

	t.Run("Should reject a repeated text with the same type only", func(t *testing.T) {
		t.Parallel()
		m := New()
		_, err := m.Add(Candidate{Type: "issuer", Text: "ACME"})
		require.NoError(t, err)

		_, err = m.Add(Candidate{Type: "issuer", Text: "ACME"})
		require.ErrorIs(t, err, ErrDuplicate)

		_, err = m.Add(Candidate{Type: "keyword", Text: "ACME"})
		require.NoError(t, err)
		require.Equal(t, 2, m.Len())
	})
}

func TestModelVariantLock(t *testing.T) {
	m := New()
	require.Equal(t, domain.VariantNone, m.Variant())

	_, err := m.Add(Candidate{Type: "issuer", Text: "ACME"})
	require.NoError(t, err)
	require.Equal(t, domain.VariantTextual, m.Variant())

	_, err = m.Add(Candidate{Type: "field", Field: "Total", Region: region(0, 0, 10, 10)})
	require.ErrorIs(t, err, ErrMixedVariant)

	require.True(t, m.Remove(domain.TextKey("ACME", domain.KindIssuer)))
	_, err = m.Add(Candidate{Type: "field", Field: "Total", Region: region(0, 0, 10, 10)})
	require.NoError(t, err)
}

func TestModelRemove(t *testing.T) {
	m := New()
	_, err := m.Add(Candidate{Type: "field", Field: "Total", Region: region(10, 10, 50, 20)})
	require.NoError(t, err)
	kept, err := m.Add(Candidate{Type: "field", Field: "Date", Region: region(10, 40, 50, 20)})
	require.NoError(t, err)

	require.False(t, m.Remove(domain.FieldKey("Unknown")))
	require.False(t, m.Remove(domain.TextKey("Total", domain.KindField)))
	require.Equal(t, 2, m.Len())

	require.True(t, m.Remove(domain.FieldKey("Total")))
	require.False(t, m.Remove(domain.FieldKey("Total")))

	template, err := m.Serialize("invoice.pdf")
	require.NoError(t, err)
	require.Equal(t, []domain.Annotation{kept}, template.Annotations)
}

func TestModelSerialize(t *testing.T) {
	m := New()
	_, err := m.Serialize("invoice.pdf")
	require.ErrorIs(t, err, ErrIncompleteTemplate)

	first, err := m.Add(Candidate{Type: "keyword", Text: "INVOICE"})
	require.NoError(t, err)
	second, err := m.Add(Candidate{Type: "issuer", Text: "ACME"})
	require.NoError(t, err)

	_, err = m.Serialize("  ")
	require.ErrorIs(t, err, ErrIncompleteTemplate)

	template, err := m.Serialize("invoice.pdf")
	require.NoError(t, err)
	require.Equal(t, domain.Template{
		PDFName:     "invoice.pdf",
		Annotations: []domain.Annotation{first, second},
	}, template)

	template.Annotations[0] = domain.NewTextual("changed", domain.KindKeyword)
	template.Annotations[1].Textual.Text = "changed"
	require.Equal(t, []domain.Annotation{
		domain.NewTextual("INVOICE", domain.KindKeyword),
		domain.NewTextual("ACME", domain.KindIssuer),
	}, m.Annotations())
}

func TestModelEntriesAreCopies(t *testing.T) {
	m := New()
	entry, err := m.Add(Candidate{Type: "field", Field: "Total", Region: region(10, 10, 50, 20)})
	require.NoError(t, err)
	entry.Geometric.Field = "Date"

	template, err := m.Serialize("invoice.pdf")
	require.NoError(t, err)
	template.Annotations[0].Geometric.X = 999

	annotations := m.Annotations()
	annotations[0].Geometric.Width = 1

	expected := domain.NewGeometric("Total", domain.KindField, domain.Rect{X: 10, Y: 10, Width: 50, Height: 20})
	require.Equal(t, []domain.Annotation{expected}, m.Annotations())

	_, err = m.Add(Candidate{Type: "field", Field: "Total", Region: region(90, 90, 50, 20)})
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = m.Add(Candidate{Type: "field", Field: "Date", Region: region(90, 90, 50, 20)})
	require.NoError(t, err)
}

func TestModelDiscard(t *testing.T) {
	m := New()
	total, err := m.Add(Candidate{Type: "field", Field: "Total", Region: region(10, 10, 50, 20)})
	require.NoError(t, err)
	date, err := m.Add(Candidate{Type: "field", Field: "Date", Region: region(10, 40, 50, 20)})
	require.NoError(t, err)
	submitted := m.Annotations()

	require.True(t, m.Remove(total.Key()))
	moved, err := m.Add(Candidate{Type: "field", Field: "Total", Region: region(90, 90, 50, 20)})
	require.NoError(t, err)
	m.Select("ACME")

	m.Discard(submitted)
	require.Equal(t, []domain.Annotation{moved}, m.Annotations())
	require.True(t, m.Pending())

	m.Discard([]domain.Annotation{moved, date})
	require.Equal(t, 0, m.Len())
	require.False(t, m.Pending())
}

func TestModelReset(t *testing.T) {
	m := New()
	_, err := m.Add(Candidate{Type: "keyword", Text: "INVOICE"})
	require.NoError(t, err)
	m.Select("ACME")
	require.True(t, m.Pending())

	m.Reset()
	require.Equal(t, 0, m.Len())
	require.False(t, m.Pending())
	_, err = m.CommitSelection("issuer")
	require.ErrorIs(t, err, ErrNoPending)
}

func TestRejectionError(t *testing.T) {
	base := errors.New("boom")
	err := reject(ErrPersistence, base)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, base)
	require.NotErrorIs(t, err, ErrDuplicate)
	require.Equal(t, "boom", err.Error())
	require.Equal(t, "duplicate", ErrDuplicate.Error())

	var rejection RejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, "persistence", rejection.Reason())
}
