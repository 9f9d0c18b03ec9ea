// Package annotation holds the in-memory template being built for one document: an ordered set of
// labeled extraction targets, validated on insertion and serialized into a domain.Template.
package annotation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nitro/lazytemplate/internal/domain"
)

// MinSize is the smallest accepted width and height, in pixels, of a geometric annotation.
const MinSize = 5

// Region is an uncommitted rectangle. Width and height are negative when the pointer was dragged
// up or left of the starting corner.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize returns the same rectangle with non-negative width and height.
func (r Region) Normalize() Region {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// Rect rounds the region edges to whole pixels. The region must be normalized.
func (r Region) Rect() domain.Rect {
	left, top := math.Round(r.X), math.Round(r.Y)
	right, bottom := math.Round(r.X+r.Width), math.Round(r.Y+r.Height)
	return domain.Rect{
		X:      int(left),
		Y:      int(top),
		Width:  int(right - left),
		Height: int(bottom - top),
	}
}

// Candidate is a proposed annotation. Region and Field describe the geometric variant, Text the
// textual one; setting both is rejected.
type Candidate struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Field  string  `json:"field,omitempty"`
	Region *Region `json:"region,omitempty"`
}

// CandidateFromAnnotation turns a stored annotation back into a candidate so it can be
// re-validated.
func CandidateFromAnnotation(a domain.Annotation) Candidate {
	switch a.Variant() {
	case domain.VariantGeometric:
		g := a.Geometric
		return Candidate{
			Type:  string(g.Type),
			Field: g.Field,
			Region: &Region{
				X: float64(g.X), Y: float64(g.Y), Width: float64(g.Width), Height: float64(g.Height),
			},
		}
	case domain.VariantTextual:
		return Candidate{Type: string(a.Textual.Type), Text: a.Textual.Text}
	}
	return Candidate{}
}

// Model is the ordered annotation set of one document. It is not safe for concurrent use; every
// mutation is expected to come from a single input event loop.
type Model struct {
	entries []domain.Annotation
	pending pending
}

// New returns an empty model.
func New() *Model {
	return &Model{}
}

// Add validates the candidate and appends it. On failure the model is left as it was.
func (m *Model) Add(c Candidate) (domain.Annotation, error) {
	entry, err := m.validate(c)
	if err != nil {
		return domain.Annotation{}, err
	}
	m.entries = append(m.entries, entry)
	return entry.Clone(), nil
}

// Remove deletes the entry matching the key. Removing an unknown key is not an error.
func (m *Model) Remove(key domain.Key) bool {
	for i, entry := range m.entries {
		if entry.Key() == key {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Serialize builds the template for the document from the current entries, in insertion order.
func (m *Model) Serialize(documentName string) (domain.Template, error) {
	if strings.TrimSpace(documentName) == "" {
		return domain.Template{}, reject(ErrIncompleteTemplate, errors.New("document name is empty"))
	}
	if len(m.entries) == 0 {
		return domain.Template{}, reject(ErrIncompleteTemplate, errors.New("no annotations made"))
	}
	return domain.Template{PDFName: documentName, Annotations: m.Annotations()}, nil
}

// Reset clears every entry and drops the pending drag or selection.
func (m *Model) Reset() {
	m.entries = nil
	m.pending = pending{}
}

// Discard removes the entries equal to the submitted ones and keeps everything else. When nothing else is left the
// model is reset, pending candidate included.
func (m *Model) Discard(submitted []domain.Annotation) {
	kept := m.entries[:0]
	for _, entry := range m.entries {
		if !containsAnnotation(submitted, entry) {
			kept = append(kept, entry)
		}
	}
	clear(m.entries[len(kept):])
	m.entries = kept
	if len(m.entries) == 0 {
		m.Reset()
	}
}

// Annotations returns a copy of the entries in insertion order.
func (m *Model) Annotations() []domain.Annotation {
	result := make([]domain.Annotation, len(m.entries))
	for i, entry := range m.entries {
		result[i] = entry.Clone()
	}
	return result
}

// Len is the number of entries.
func (m *Model) Len() int {
	return len(m.entries)
}

// Variant is the variant locked by the current entries, VariantNone when empty.
func (m *Model) Variant() domain.Variant {
	if len(m.entries) == 0 {
		return domain.VariantNone
	}
	return m.entries[0].Variant()
}

func containsAnnotation(set []domain.Annotation, a domain.Annotation) bool {
	for _, candidate := range set {
		if sameAnnotation(candidate, a) {
			return true
		}
	}
	return false
}

func sameAnnotation(a, b domain.Annotation) bool {
	switch {
	case a.Variant() != b.Variant():
		return false
	case a.Geometric != nil:
		return *a.Geometric == *b.Geometric
	case a.Textual != nil:
		return *a.Textual == *b.Textual
	}
	return true
}

func (m *Model) validate(c Candidate) (domain.Annotation, error) {
	kind := domain.Kind(strings.TrimSpace(c.Type))
	if !kind.Valid() {
		return domain.Annotation{}, reject(
			ErrInvalidType, fmt.Errorf("invalid type '%s', must be 'issuer', 'field' or 'keyword'", c.Type),
		)
	}

	var entry domain.Annotation
	switch {
	case c.Region != nil && c.Text != "":
		return domain.Annotation{}, reject(ErrMixedVariant, errors.New("candidate carries both text and a region"))
	case c.Region != nil:
		field := strings.TrimSpace(c.Field)
		if field == "" {
			return domain.Annotation{}, reject(ErrEmptyValue, errors.New("field name is empty"))
		}
		region := c.Region.Normalize()
		if region.Width < MinSize || region.Height < MinSize {
			return domain.Annotation{}, reject(ErrTooSmall, fmt.Errorf(
				"region %gx%g is smaller than %dx%d", region.Width, region.Height, MinSize, MinSize,
			))
		}
		entry = domain.NewGeometric(field, kind, region.Rect())
	case c.Field != "" && c.Text == "":
		return domain.Annotation{}, reject(ErrEmptyValue, fmt.Errorf("field '%s' has no region", c.Field))
	default:
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return domain.Annotation{}, reject(ErrEmptyValue, errors.New("selected text is empty"))
		}
		entry = domain.NewTextual(text, kind)
	}

	if locked := m.Variant(); locked != domain.VariantNone && locked != entry.Variant() {
		return domain.Annotation{}, reject(ErrMixedVariant, fmt.Errorf(
			"template already holds %s annotations, can't add a %s one", locked, entry.Variant(),
		))
	}

	key := entry.Key()
	for _, existing := range m.entries {
		if existing.Key() == key {
			return domain.Annotation{}, reject(ErrDuplicate, fmt.Errorf("annotation '%s' already exists", entry.Label()))
		}
	}
	return entry, nil
}
