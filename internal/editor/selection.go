package editor

import "qrstudio/internal/domain"

// Tool is the active pointer tool.
type Tool string

const (
	ToolSelect     Tool = "select"
	ToolText       Tool = "text"
	ToolShape      Tool = "shape"
	ToolImage      Tool = "image"
	ToolQR         Tool = "qr"
	ToolAnnotation Tool = "annotation"
)

// Inserts reports the element kind the tool creates, if any.
func (t Tool) Inserts() (domain.ElementKind, bool) {
	switch t {
	case ToolText:
		return domain.ElementText, true
	case ToolShape:
		return domain.ElementShape, true
	case ToolImage:
		return domain.ElementImage, true
	case ToolQR:
		return domain.ElementQR, true
	case ToolAnnotation:
		return domain.ElementAnnotation, true
	}
	return "", false
}

func (t Tool) Valid() bool {
	_, ok := t.Inserts()
	return ok || t == ToolSelect
}

// Default sizes for freshly inserted elements, in document units.
var defaultSizes = map[domain.ElementKind]domain.Size{
	domain.ElementText:       {Width: 200, Height: 40},
	domain.ElementShape:      {Width: 120, Height: 120},
	domain.ElementImage:      {Width: 200, Height: 150},
	domain.ElementQR:         {Width: 120, Height: 120},
	domain.ElementAnnotation: {Width: 160, Height: 24},
}

// Selection is the editor's tool and selection state.
type Selection struct {
	Tool Tool
	Zoom float64
	Page int

	ids []string

	// Per-kind body overrides used by insertion tools (shape kind, image
	// source, QR content, ...). Missing kinds use domain.DefaultBody.
	defaults map[domain.ElementKind]domain.ElementBody
}

func NewSelection() *Selection {
	return &Selection{
		Tool:     ToolSelect,
		Zoom:     1,
		Page:     1,
		defaults: make(map[domain.ElementKind]domain.ElementBody),
	}
}

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string {
	return append([]string(nil), s.ids...)
}

// Primary returns the first selected id, or "" when nothing is selected.
func (s *Selection) Primary() string {
	if len(s.ids) == 0 {
		return ""
	}
	return s.ids[0]
}

func (s *Selection) Has(id string) bool {
	for _, sid := range s.ids {
		if sid == id {
			return true
		}
	}
	return false
}

func (s *Selection) Clear() { s.ids = nil }

// Set replaces the selection, dropping duplicates.
func (s *Selection) Set(ids ...string) {
	s.ids = nil
	for _, id := range ids {
		if id != "" && !s.Has(id) {
			s.ids = append(s.ids, id)
		}
	}
}

// Toggle adds id if absent, removes it otherwise.
func (s *Selection) Toggle(id string) {
	if s.Has(id) {
		s.Remove(id)
		return
	}
	s.ids = append(s.ids, id)
}

func (s *Selection) Remove(id string) {
	for i, sid := range s.ids {
		if sid == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return
		}
	}
}

// Retain drops every selected id for which keep returns false.
func (s *Selection) Retain(keep func(id string) bool) {
	kept := s.ids[:0]
	for _, id := range s.ids {
		if keep(id) {
			kept = append(kept, id)
		}
	}
	s.ids = kept
}

// SetDefault overrides the body new elements of body.Kind() start with.
func (s *Selection) SetDefault(body domain.ElementBody) {
	s.defaults[body.Kind()] = body
}

// NewElement builds an unsaved element of kind with the tool defaults. Its
// top-left corner sits at (x, y) on the current page.
func (s *Selection) NewElement(kind domain.ElementKind, x, y float64) (domain.Element, error) {
	body, ok := s.defaults[kind]
	if !ok {
		var err error
		if body, err = domain.DefaultBody(kind); err != nil {
			return domain.Element{}, err
		}
	}
	size := defaultSizes[kind]
	return domain.Element{
		Page:    s.Page,
		Rect:    domain.Rect{X: x, Y: y, Width: size.Width, Height: size.Height},
		Opacity: 1,
		Body:    body,
	}, nil
}
