package domain

import (
	"encoding/json"
	"fmt"
)

// ElementKind is the type tag of an element placed on a document page.
type ElementKind string

const (
	ElementText       ElementKind = "text"
	ElementImage      ElementKind = "image"
	ElementShape      ElementKind = "shape"
	ElementAnnotation ElementKind = "annotation"
	ElementQR         ElementKind = "qr"
)

// Rect is an axis-aligned rectangle in document coordinate space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize flips negative width/height so the rectangle grows right and down.
func (r Rect) Normalize() Rect {
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

// Contains reports whether the point lies inside r (edges inclusive).
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Intersects reports whether r and o overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.Width && r.X+r.Width > o.X &&
		r.Y < o.Y+o.Height && r.Y+r.Height > o.Y
}

// ElementBody is the closed set of type-specific element payloads.
// Only the body types declared in this file implement it.
type ElementBody interface {
	Kind() ElementKind
	isElementBody()
}

type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

type TextBody struct {
	Content    string    `json:"content"`
	FontFamily string    `json:"fontFamily"`
	FontSize   float64   `json:"fontSize"`
	Color      string    `json:"color"`
	Align      TextAlign `json:"align"`
	Bold       bool      `json:"bold"`
	Italic     bool      `json:"italic"`
}

type ShapeKind string

const (
	ShapeRect    ShapeKind = "rect"
	ShapeEllipse ShapeKind = "ellipse"
	ShapeLine    ShapeKind = "line"
	ShapeArrow   ShapeKind = "arrow"
)

type ShapeBody struct {
	Shape       ShapeKind `json:"shape"`
	Fill        string    `json:"fill"`
	Stroke      string    `json:"stroke"`
	StrokeWidth float64   `json:"strokeWidth"`
}

type ImageBody struct {
	Source string `json:"source"` // public URL or data URL
	Fit    string `json:"fit"`    // "contain" | "cover" | "stretch"
}

type AnnotationKind string

const (
	AnnotationHighlight AnnotationKind = "highlight"
	AnnotationNote      AnnotationKind = "note"
	AnnotationUnderline AnnotationKind = "underline"
	AnnotationStrike    AnnotationKind = "strike"
)

type AnnotationBody struct {
	Annotation AnnotationKind `json:"annotation"`
	Color      string         `json:"color"`
	Note       string         `json:"note"`
}

type QRBody struct {
	Content    string `json:"content"`
	Foreground string `json:"foreground"`
	Background string `json:"background"`
	ErrorLevel string `json:"errorLevel"` // L, M, Q, H
}

func (TextBody) Kind() ElementKind       { return ElementText }
func (ShapeBody) Kind() ElementKind      { return ElementShape }
func (ImageBody) Kind() ElementKind      { return ElementImage }
func (AnnotationBody) Kind() ElementKind { return ElementAnnotation }
func (QRBody) Kind() ElementKind         { return ElementQR }

func (TextBody) isElementBody()       {}
func (ShapeBody) isElementBody()      {}
func (ImageBody) isElementBody()      {}
func (AnnotationBody) isElementBody() {}
func (QRBody) isElementBody()         {}

// DefaultBody returns the body a freshly inserted element of kind starts with.
func DefaultBody(kind ElementKind) (ElementBody, error) {
	switch kind {
	case ElementText:
		return TextBody{Content: "Text", FontFamily: "Helvetica", FontSize: 16, Color: "#111111", Align: AlignLeft}, nil
	case ElementShape:
		return ShapeBody{Shape: ShapeRect, Fill: "#00000000", Stroke: "#111111", StrokeWidth: 2}, nil
	case ElementImage:
		return ImageBody{Fit: "contain"}, nil
	case ElementAnnotation:
		return AnnotationBody{Annotation: AnnotationHighlight, Color: "#FFEB3B"}, nil
	case ElementQR:
		return QRBody{Content: "https://example.com", Foreground: "#000000", Background: "#FFFFFF", ErrorLevel: "M"}, nil
	default:
		return nil, fmt.Errorf("%w: unknown element type %q", ErrValidation, kind)
	}
}

// DecodeBody parses props for the given kind. Empty props yield the default body.
func DecodeBody(kind ElementKind, props json.RawMessage) (ElementBody, error) {
	body, err := DefaultBody(kind)
	if err != nil {
		return nil, err
	}
	if len(props) == 0 || string(props) == "null" {
		return body, nil
	}
	return MergeProps(body, props)
}

// MergeProps overlays a partial JSON props object onto body.
// Fields absent from props keep their current values.
func MergeProps(body ElementBody, props json.RawMessage) (ElementBody, error) {
	var err error
	switch b := body.(type) {
	case TextBody:
		err = json.Unmarshal(props, &b)
		body = b
	case ShapeBody:
		err = json.Unmarshal(props, &b)
		body = b
	case ImageBody:
		err = json.Unmarshal(props, &b)
		body = b
	case AnnotationBody:
		err = json.Unmarshal(props, &b)
		body = b
	case QRBody:
		err = json.Unmarshal(props, &b)
		body = b
	default:
		return nil, fmt.Errorf("%w: element has no body", ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s props: %v", ErrValidation, body.Kind(), err)
	}
	return body, nil
}

// Element is a placed object on one page of the document being edited.
type Element struct {
	ID       string      `json:"id"`
	Page     int         `json:"page"`
	Rect     Rect        `json:"rect"`
	Rotation float64     `json:"rotation"`
	Opacity  float64     `json:"opacity"`
	Z        int         `json:"z"`
	Locked   bool        `json:"locked"`
	Edited   bool        `json:"edited"`
	Body     ElementBody `json:"-"`
}

// Kind returns the element's type tag, or "" if it has no body.
func (e Element) Kind() ElementKind {
	if e.Body == nil {
		return ""
	}
	return e.Body.Kind()
}

// Clone returns a copy that shares nothing mutable with e.
// Bodies are plain value types, so a struct copy is enough.
func (e Element) Clone() Element {
	return e
}

// Validate checks the invariants every stored element must satisfy.
func (e Element) Validate() error {
	if e.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", ErrValidation, e.Page)
	}
	if e.Rect.Width < 0 || e.Rect.Height < 0 {
		return fmt.Errorf("%w: negative size %.1fx%.1f", ErrValidation, e.Rect.Width, e.Rect.Height)
	}
	if e.Opacity < 0 || e.Opacity > 1 {
		return fmt.Errorf("%w: opacity %.2f out of range", ErrValidation, e.Opacity)
	}
	if e.Body == nil {
		return fmt.Errorf("%w: element has no body", ErrValidation)
	}
	return nil
}

func (e Element) MarshalJSON() ([]byte, error) {
	type alias Element
	var props json.RawMessage = []byte("null")
	if e.Body != nil {
		b, err := json.Marshal(e.Body)
		if err != nil {
			return nil, err
		}
		props = b
	}
	return json.Marshal(struct {
		alias
		Type  ElementKind     `json:"type"`
		Props json.RawMessage `json:"props"`
	}{alias(e), e.Kind(), props})
}

func (e *Element) UnmarshalJSON(data []byte) error {
	type alias Element
	var raw struct {
		alias
		Opacity *float64        `json:"opacity"`
		Type    ElementKind     `json:"type"`
		Props   json.RawMessage `json:"props"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	body, err := DecodeBody(raw.Type, raw.Props)
	if err != nil {
		return err
	}
	*e = Element(raw.alias)
	e.Body = body
	// An element sent without opacity is fully opaque; 0 is kept as given.
	e.Opacity = 1
	if raw.Opacity != nil {
		e.Opacity = *raw.Opacity
	}
	return nil
}

// ElementPatch is a partial update. Nil fields are left unchanged.
// Props is merged onto the existing body; Body replaces it outright.
type ElementPatch struct {
	Page     *int            `json:"page,omitempty"`
	X        *float64        `json:"x,omitempty"`
	Y        *float64        `json:"y,omitempty"`
	Width    *float64        `json:"width,omitempty"`
	Height   *float64        `json:"height,omitempty"`
	Rotation *float64        `json:"rotation,omitempty"`
	Opacity  *float64        `json:"opacity,omitempty"`
	Z        *int            `json:"z,omitempty"`
	Locked   *bool           `json:"locked,omitempty"`
	Props    json.RawMessage `json:"props,omitempty"`
	Body     ElementBody     `json:"-"`
}

// Apply merges p into el. el is only modified if the merged result is valid.
func (p ElementPatch) Apply(el *Element) error {
	next := el.Clone()
	if p.Page != nil {
		next.Page = *p.Page
	}
	if p.X != nil {
		next.Rect.X = *p.X
	}
	if p.Y != nil {
		next.Rect.Y = *p.Y
	}
	if p.Width != nil {
		next.Rect.Width = *p.Width
	}
	if p.Height != nil {
		next.Rect.Height = *p.Height
	}
	if p.Rotation != nil {
		next.Rotation = *p.Rotation
	}
	if p.Opacity != nil {
		next.Opacity = *p.Opacity
	}
	if p.Z != nil {
		next.Z = *p.Z
	}
	if p.Locked != nil {
		next.Locked = *p.Locked
	}
	if p.Body != nil {
		if p.Body.Kind() != el.Kind() {
			return fmt.Errorf("%w: cannot change %s element into %s", ErrValidation, el.Kind(), p.Body.Kind())
		}
		next.Body = p.Body
	}
	if len(p.Props) > 0 {
		body, err := MergeProps(next.Body, p.Props)
		if err != nil {
			return err
		}
		next.Body = body
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*el = next
	return nil
}

// Move returns a patch that sets the element position.
func Move(x, y float64) ElementPatch {
	return ElementPatch{X: &x, Y: &y}
}

// Resize returns a patch that sets position and size together.
func Resize(r Rect) ElementPatch {
	return ElementPatch{X: &r.X, Y: &r.Y, Width: &r.Width, Height: &r.Height}
}
