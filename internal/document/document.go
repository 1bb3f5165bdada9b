// Package document implements the whiteboard content model: strokes,
// shapes and text, and the pure operations over an immutable Document.
package document

import (
	"errors"
	"sort"
)

// ErrDuplicateID is returned by AddStroke, AddShape and AddText when the
// element's id is already present in the document.
var ErrDuplicateID = errors.New("document: duplicate element id")

// Point is a 2D coordinate on the whiteboard canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeMode distinguishes freehand ink from an eraser stroke.
type StrokeMode string

const (
	ModeInk   StrokeMode = "ink"
	ModeErase StrokeMode = "erase"
)

// ShapeKind enumerates the supported drawn shapes.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeArrow     ShapeKind = "arrow"
	ShapeSegment   ShapeKind = "segment"
)

// Stroke is a freehand ink or eraser path.
type Stroke struct {
	ID          string     `json:"id"`
	Author      string     `json:"author"`
	CreatedAt   int64      `json:"created_at"`
	Points      []Point    `json:"points"`
	Color       string     `json:"color"`
	StrokeWidth float64    `json:"stroke_width"`
	Mode        StrokeMode `json:"mode"`
}

// Shape is a rectangle, ellipse, arrow or line segment between two anchors.
type Shape struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	CreatedAt   int64     `json:"created_at"`
	Kind        ShapeKind `json:"kind"`
	From        Point     `json:"from"`
	To          Point     `json:"to"`
	Color       string    `json:"color"`
	StrokeWidth float64   `json:"stroke_width"`
	Fill        *string   `json:"fill,omitempty"`
}

// Text is a string payload anchored at a point.
type Text struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	CreatedAt  int64   `json:"created_at"`
	At         Point   `json:"at"`
	Body       string  `json:"body"`
	FontSize   float64 `json:"font_size"`
	FontFamily string  `json:"font_family"`
	Color      string  `json:"color"`
}

// Element is the tagged-variant view over a Stroke, Shape or Text, used
// wherever code needs to treat the three collections uniformly (render
// order, id lookup) without probing for which fields are present.
type Element interface {
	ElementID() string
	ElementAuthor() string
	ElementCreatedAt() int64
}

func (s Stroke) ElementID() string       { return s.ID }
func (s Stroke) ElementAuthor() string   { return s.Author }
func (s Stroke) ElementCreatedAt() int64 { return s.CreatedAt }
func (s Shape) ElementID() string        { return s.ID }
func (s Shape) ElementAuthor() string    { return s.Author }
func (s Shape) ElementCreatedAt() int64  { return s.CreatedAt }
func (t Text) ElementID() string         { return t.ID }
func (t Text) ElementAuthor() string     { return t.Author }
func (t Text) ElementCreatedAt() int64   { return t.CreatedAt }

// Document is the whiteboard content at a point in time: three ordered
// collections. Values are never mutated in place — every operation
// below returns a new Document, leaving the input untouched.
type Document struct {
	Strokes []Stroke `json:"strokes"`
	Shapes  []Shape  `json:"shapes"`
	Texts   []Text   `json:"texts"`
}

// Empty returns a Document with no elements.
func Empty() Document {
	return Document{}
}

// HasID reports whether any element in the document carries the given id.
func (d Document) HasID(id string) bool {
	for _, s := range d.Strokes {
		if s.ID == id {
			return true
		}
	}
	for _, s := range d.Shapes {
		if s.ID == id {
			return true
		}
	}
	for _, t := range d.Texts {
		if t.ID == id {
			return true
		}
	}
	return false
}

// AddStroke returns a new Document with the stroke appended. Fails with
// ErrDuplicateID if the id already exists anywhere in the document.
func (d Document) AddStroke(s Stroke) (Document, error) {
	if d.HasID(s.ID) {
		return d, ErrDuplicateID
	}
	out := d.clone()
	out.Strokes = append(out.Strokes, s)
	return out, nil
}

// AddShape returns a new Document with the shape appended.
func (d Document) AddShape(s Shape) (Document, error) {
	if d.HasID(s.ID) {
		return d, ErrDuplicateID
	}
	out := d.clone()
	out.Shapes = append(out.Shapes, s)
	return out, nil
}

// AddText returns a new Document with the text element appended.
func (d Document) AddText(t Text) (Document, error) {
	if d.HasID(t.ID) {
		return d, ErrDuplicateID
	}
	out := d.clone()
	out.Texts = append(out.Texts, t)
	return out, nil
}

// RemoveElement returns a new Document with the element carrying id
// removed, whichever collection it lives in. Unknown ids are a no-op:
// the returned Document equals the input and changed is false.
func (d Document) RemoveElement(id string) (out Document, changed bool) {
	if !d.HasID(id) {
		return d, false
	}
	out = d.clone()
	out.Strokes = removeByID(out.Strokes, id, func(s Stroke) string { return s.ID })
	out.Shapes = removeByID(out.Shapes, id, func(s Shape) string { return s.ID })
	out.Texts = removeByID(out.Texts, id, func(t Text) string { return t.ID })
	return out, true
}

func removeByID[T any](items []T, id string, idOf func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if idOf(item) == id {
			continue
		}
		out = append(out, item)
	}
	return out
}

// RenderOrder returns every element across the three collections in
// the order they should be drawn: ascending created_at, ties broken by
// id. The result is deterministic across repeated calls on equal input.
func (d Document) RenderOrder() []Element {
	elems := make([]Element, 0, len(d.Strokes)+len(d.Shapes)+len(d.Texts))
	for _, s := range d.Strokes {
		elems = append(elems, s)
	}
	for _, s := range d.Shapes {
		elems = append(elems, s)
	}
	for _, t := range d.Texts {
		elems = append(elems, t)
	}
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i], elems[j]
		if a.ElementCreatedAt() != b.ElementCreatedAt() {
			return a.ElementCreatedAt() < b.ElementCreatedAt()
		}
		return a.ElementID() < b.ElementID()
	})
	return elems
}

// clone returns a deep-enough copy of d: new backing arrays for all
// three slices so appends never alias the receiver's storage.
func (d Document) clone() Document {
	out := Document{
		Strokes: make([]Stroke, len(d.Strokes)),
		Shapes:  make([]Shape, len(d.Shapes)),
		Texts:   make([]Text, len(d.Texts)),
	}
	copy(out.Strokes, d.Strokes)
	copy(out.Shapes, d.Shapes)
	copy(out.Texts, d.Texts)
	return out
}
