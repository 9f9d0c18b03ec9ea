package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Kind is the semantic role of an annotation inside an extraction template.
type Kind string

// Recognized annotation kinds.
const (
	KindIssuer  Kind = "issuer"
	KindField   Kind = "field"
	KindKeyword Kind = "keyword"
)

// Valid reports if the kind is one of the recognized values.
func (k Kind) Valid() bool {
	switch k {
	case KindIssuer, KindField, KindKeyword:
		return true
	}
	return false
}

// Variant discriminates the two annotation shapes.
type Variant int

// Annotation variants.
const (
	VariantNone Variant = iota
	VariantGeometric
	VariantTextual
)

func (v Variant) String() string {
	switch v {
	case VariantGeometric:
		return "geometric"
	case VariantTextual:
		return "textual"
	}
	return "none"
}

// Rect is a page rectangle in rendered pixel space.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a page-relative position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geometric is an annotation defined by a labeled rectangle.
type Geometric struct {
	Field string `json:"field"`
	Type  Kind   `json:"type"`
	Rect
}

// Textual is an annotation defined by a selected text span.
type Textual struct {
	Text string `json:"text"`
	Type Kind   `json:"type"`
}

// Annotation holds exactly one of the two variants.
type Annotation struct {
	Geometric *Geometric
	Textual   *Textual
}

// NewGeometric builds a geometric annotation.
func NewGeometric(field string, kind Kind, rect Rect) Annotation {
	return Annotation{Geometric: &Geometric{Field: field, Type: kind, Rect: rect}}
}

// NewTextual builds a textual annotation.
func NewTextual(text string, kind Kind) Annotation {
	return Annotation{Textual: &Textual{Text: text, Type: kind}}
}

// Clone returns a copy that shares no memory with the annotation.
func (a Annotation) Clone() Annotation {
	var c Annotation
	if a.Geometric != nil {
		g := *a.Geometric
		c.Geometric = &g
	}
	if a.Textual != nil {
		t := *a.Textual
		c.Textual = &t
	}
	return c
}

// Variant of the annotation.
func (a Annotation) Variant() Variant {
	switch {
	case a.Geometric != nil:
		return VariantGeometric
	case a.Textual != nil:
		return VariantTextual
	}
	return VariantNone
}

// Kind of the annotation.
func (a Annotation) Kind() Kind {
	switch a.Variant() {
	case VariantGeometric:
		return a.Geometric.Type
	case VariantTextual:
		return a.Textual.Type
	}
	return ""
}

// Label is the field name for geometric entries and the selected text for textual ones.
func (a Annotation) Label() string {
	switch a.Variant() {
	case VariantGeometric:
		return a.Geometric.Field
	case VariantTextual:
		return a.Textual.Text
	}
	return ""
}

// Key identifying the annotation inside a template.
func (a Annotation) Key() Key {
	switch a.Variant() {
	case VariantGeometric:
		return FieldKey(a.Geometric.Field)
	case VariantTextual:
		return TextKey(a.Textual.Text, a.Textual.Type)
	}
	return Key{}
}

// MarshalJSON writes the flat wire shape of whichever variant is set.
func (a Annotation) MarshalJSON() ([]byte, error) {
	switch a.Variant() {
	case VariantGeometric:
		return json.Marshal(a.Geometric)
	case VariantTextual:
		return json.Marshal(a.Textual)
	}
	return nil, errors.New("empty annotation")
}

// UnmarshalJSON picks the variant by the fields present in the payload.
func (a *Annotation) UnmarshalJSON(payload []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return err
	}

	_, hasText := raw["text"]
	hasGeometry := false
	for _, name := range []string{"field", "x", "y", "width", "height"} {
		if _, ok := raw[name]; ok {
			hasGeometry = true
			break
		}
	}

	switch {
	case hasText && hasGeometry:
		return errors.New("annotation carries both 'text' and geometric fields")
	case hasText:
		var t Textual
		if err := decodeStrict(payload, &t); err != nil {
			return fmt.Errorf("fail to unmarshal textual annotation: %w", err)
		}
		*a = Annotation{Textual: &t}
	case hasGeometry:
		var g Geometric
		if err := decodeStrict(payload, &g); err != nil {
			return fmt.Errorf("fail to unmarshal geometric annotation: %w", err)
		}
		*a = Annotation{Geometric: &g}
	default:
		return errors.New("annotation carries neither 'text' nor 'field'")
	}
	return nil
}

func decodeStrict(payload []byte, v interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Key identifies an annotation for removal. Field is set for geometric entries, Text and Type
// for textual ones.
type Key struct {
	Field string `json:"field,omitempty"`
	Text  string `json:"text,omitempty"`
	Type  Kind   `json:"type,omitempty"`
}

// FieldKey identifies a geometric annotation.
func FieldKey(field string) Key {
	return Key{Field: field}
}

// TextKey identifies a textual annotation.
func TextKey(text string, kind Kind) Key {
	return Key{Text: text, Type: kind}
}

// Template is the persisted unit handed to the template store.
type Template struct {
	PDFName     string       `json:"pdf_name"`
	Annotations []Annotation `json:"annotations"`
}

// Viewport is the rendered size of one document page.
type Viewport struct {
	Page   int     `json:"page"`
	Pages  int     `json:"pages"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

// Point converts a pointer position, given with the position of the rendered page origin in the
// same coordinate system, into a page-relative point clamped to the page bounds.
func (v Viewport) Point(clientX, clientY float64, origin Point) Point {
	return Point{
		X: clamp(clientX-origin.X, 0, v.Width),
		Y: clamp(clientY-origin.Y, 0, v.Height),
	}
}

func clamp(value, lower, upper float64) float64 {
	return math.Max(lower, math.Min(value, upper))
}
