package annotation

import (
	"errors"

	"github.com/nitro/lazytemplate/internal/domain"
)

type pending struct {
	drawing   bool
	start     domain.Point
	current   domain.Point
	selection string
}

// BeginDrag starts drawing a rectangle at the given page point. Any pending selection is dropped.
func (m *Model) BeginDrag(p domain.Point) {
	m.pending = pending{drawing: true, start: p, current: p}
}

// Drag moves the free corner of the rectangle being drawn.
func (m *Model) Drag(p domain.Point) {
	if !m.pending.drawing {
		return
	}
	m.pending.current = p
}

// PendingRegion is the rectangle being drawn, as dragged, and whether there is one.
func (m *Model) PendingRegion() (Region, bool) {
	if !m.pending.drawing {
		return Region{}, false
	}
	return regionBetween(m.pending.start, m.pending.current), true
}

// CommitDrag finishes the rectangle at the given point and adds it as a geometric annotation. The
// drag is consumed whether or not the candidate is accepted.
func (m *Model) CommitDrag(p domain.Point, field, kind string) (domain.Annotation, error) {
	if !m.pending.drawing {
		return domain.Annotation{}, reject(ErrNoPending, errors.New("no rectangle is being drawn"))
	}
	region := regionBetween(m.pending.start, p)
	m.pending = pending{}
	return m.Add(Candidate{Type: kind, Field: field, Region: &region})
}

// Select records the text currently selected in the rendered document. Any drag is dropped.
func (m *Model) Select(text string) {
	m.pending = pending{selection: text}
}

// CommitSelection adds the pending selection as a textual annotation. The selection is consumed
// whether or not the candidate is accepted.
func (m *Model) CommitSelection(kind string) (domain.Annotation, error) {
	if m.pending.selection == "" {
		return domain.Annotation{}, reject(ErrNoPending, errors.New("no text is selected"))
	}
	text := m.pending.selection
	m.pending = pending{}
	return m.Add(Candidate{Type: kind, Text: text})
}

// Pending reports if a rectangle is being drawn or a selection waits to be labeled.
func (m *Model) Pending() bool {
	return m.pending.drawing || m.pending.selection != ""
}

func regionBetween(start, end domain.Point) Region {
	return Region{X: start.X, Y: start.Y, Width: end.X - start.X, Height: end.Y - start.Y}
}
