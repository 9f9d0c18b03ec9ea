package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnotationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		payload       string
		expected      Annotation
		expectedError bool
	}{
		{
			payload:  `{"field":"Total","type":"field","x":10,"y":10,"width":50,"height":20}`,
			expected: NewGeometric("Total", KindField, Rect{X: 10, Y: 10, Width: 50, Height: 20}),
		},
		{
			payload:  `{"text":"ACME Corp","type":"issuer"}`,
			expected: NewTextual("ACME Corp", KindIssuer),
		},
		{
			payload:  `{"type":"keyword","x":0,"y":0,"width":5,"height":5}`,
			expected: NewGeometric("", KindKeyword, Rect{Width: 5, Height: 5}),
		},
		{
			payload:       `{"text":"ACME","field":"Issuer","type":"issuer"}`,
			expectedError: true,
		},
		{
			payload:       `{"type":"issuer"}`,
			expectedError: true,
		},
		{
			payload:       `[]`,
			expectedError: true,
		},
		{
			payload:       `{"text":"ACME","type":"issuer","color":"red"}`,
			expectedError: true,
		},
		{
			payload:       `{"field":"Total","type":"field","x":1,"y":1,"width":5,"height":5,"page":2}`,
			expectedError: true,
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("Scenario %d", i), func(t *testing.T) {
			t.Parallel()
			var a Annotation
			err := json.Unmarshal([]byte(tt.payload), &a)
			if tt.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, a)
		})
	}
}

func TestAnnotationClone(t *testing.T) {
	geometric := NewGeometric("Total", KindField, Rect{X: 10, Y: 10, Width: 50, Height: 20})
	clone := geometric.Clone()
	require.Equal(t, geometric, clone)
	clone.Geometric.X = 999
	clone.Geometric.Field = "Changed"
	require.Equal(t, 10, geometric.Geometric.X)
	require.Equal(t, "Total", geometric.Geometric.Field)

	textual := NewTextual("ACME", KindIssuer)
	clone = textual.Clone()
	clone.Textual.Text = "Changed"
	require.Equal(t, "ACME", textual.Textual.Text)

	require.Equal(t, Annotation{}, Annotation{}.Clone())
}

func TestTemplateWireShape(t *testing.T) {
	template := Template{
		PDFName: "invoice.pdf",
		Annotations: []Annotation{
			NewGeometric("Total", KindField, Rect{X: 60, Y: 80, Width: 40, Height: 20}),
			NewTextual("ACME", KindIssuer),
		},
	}
	payload, err := json.Marshal(template)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"pdf_name": "invoice.pdf",
		"annotations": [
			{"field":"Total","type":"field","x":60,"y":80,"width":40,"height":20},
			{"text":"ACME","type":"issuer"}
		]
	}`, string(payload))

	_, err = json.Marshal(Annotation{})
	require.Error(t, err)
}

func TestAnnotationKey(t *testing.T) {
	require.Equal(t, FieldKey("Total"), NewGeometric("Total", KindField, Rect{}).Key())
	require.Equal(t, TextKey("ACME", KindIssuer), NewTextual("ACME", KindIssuer).Key())
	require.Equal(t, Key{}, Annotation{}.Key())
	require.NotEqual(t, TextKey("ACME", KindIssuer), TextKey("ACME", KindKeyword))
}

func TestViewportPoint(t *testing.T) {
	v := Viewport{Width: 600, Height: 800}
	tests := []struct {
		clientX, clientY float64
		origin           Point
		expected         Point
	}{
		{clientX: 110, clientY: 220, origin: Point{X: 10, Y: 20}, expected: Point{X: 100, Y: 200}},
		{clientX: 5, clientY: 5, origin: Point{X: 10, Y: 20}, expected: Point{X: 0, Y: 0}},
		{clientX: 900, clientY: 900, origin: Point{}, expected: Point{X: 600, Y: 800}},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("Scenario %d", i), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, v.Point(tt.clientX, tt.clientY, tt.origin))
		})
	}
}

func TestKindValid(t *testing.T) {
	for _, kind := range []Kind{KindIssuer, KindField, KindKeyword} {
		require.True(t, kind.Valid())
	}
	for _, kind := range []Kind{"", "exclude_keyword", "Field", "line"} {
		require.False(t, kind.Valid())
	}
}
