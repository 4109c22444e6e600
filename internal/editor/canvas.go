package editor

import (
	"math"

	"qrstudio/internal/domain"
)

// handleSize is the side of a resize handle in screen pixels.
const handleSize = 8.0

// minElementSize keeps resized elements from collapsing to nothing.
const minElementSize = 4.0

// PointerEvent is a pointer position in screen coordinates of the page view.
// Zoom of 0 means the selection's current zoom.
type PointerEvent struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Zoom  float64 `json:"zoom,omitempty"`
	Shift bool    `json:"shift,omitempty"`
}

type LayerKind string

const (
	LayerBackground  LayerKind = "background"
	LayerElement     LayerKind = "element"
	LayerDragPreview LayerKind = "drag-preview"
	LayerHandles     LayerKind = "handles"
	LayerMarquee     LayerKind = "marquee"
)

// Handle is a resize grip on the selected element.
type Handle string

const (
	HandleNW Handle = "nw"
	HandleNE Handle = "ne"
	HandleSW Handle = "sw"
	HandleSE Handle = "se"
)

var allHandles = []Handle{HandleNW, HandleNE, HandleSW, HandleSE}

// Layer is one paint step of the page view, bottom to top.
type Layer struct {
	Kind      LayerKind              `json:"kind"`
	Rect      domain.Rect            `json:"rect"`
	ImageURL  string                 `json:"imageUrl,omitempty"`
	Element   *domain.Element        `json:"element,omitempty"`
	ElementID string                 `json:"elementId,omitempty"`
	Handles   map[Handle]domain.Rect `json:"handles,omitempty"`
}

// Outcome tells the session what a pointer event did.
type Outcome struct {
	Changed bool   // elements or feedback changed, repaint
	Commit  bool   // a finished mutation, record history
	Created string // id of an element created by an insertion tool
}

type gestureKind int

const (
	gestureNone gestureKind = iota
	gestureDrag
	gestureResize
	gestureMarquee
)

// gesture is the in-flight pointer interaction between down and up.
type gesture struct {
	kind    gestureKind
	startX  float64
	startY  float64
	curX    float64
	curY    float64
	moved   bool
	origins map[string]domain.Rect // drag: unlocked ids and their start rects
	target  string                 // resize
	handle  Handle
}

// Canvas maps pointer input onto store mutations and composes the layer
// list for a page. It keeps no element state of its own.
type Canvas struct {
	store *Store
	sel   *Selection
	g     gesture
}

func NewCanvas(store *Store, sel *Selection) *Canvas {
	return &Canvas{store: store, sel: sel}
}

func (c *Canvas) zoom(ev PointerEvent) float64 {
	if ev.Zoom > 0 {
		return ev.Zoom
	}
	return c.viewZoom()
}

// viewZoom is the zoom the page is painted at. Resize grips are sized from
// it both when drawn and when hit-tested.
func (c *Canvas) viewZoom() float64 {
	if c.sel.Zoom > 0 {
		return c.sel.Zoom
	}
	return 1
}

func (c *Canvas) toDoc(ev PointerEvent) (float64, float64) {
	z := c.zoom(ev)
	return ev.X / z, ev.Y / z
}

// HitTest returns the top-most element on the current page containing the
// document point, or "".
func (c *Canvas) HitTest(x, y float64) string {
	els := c.store.ElementsForPage(c.sel.Page)
	for i := len(els) - 1; i >= 0; i-- {
		if els[i].Rect.Normalize().Contains(x, y) {
			return els[i].ID
		}
	}
	return ""
}

// handleRects places the four corner grips of r, sized for zoom.
func handleRects(r domain.Rect, zoom float64) map[Handle]domain.Rect {
	s := handleSize / zoom
	h := s / 2
	return map[Handle]domain.Rect{
		HandleNW: {X: r.X - h, Y: r.Y - h, Width: s, Height: s},
		HandleNE: {X: r.X + r.Width - h, Y: r.Y - h, Width: s, Height: s},
		HandleSW: {X: r.X - h, Y: r.Y + r.Height - h, Width: s, Height: s},
		HandleSE: {X: r.X + r.Width - h, Y: r.Y + r.Height - h, Width: s, Height: s},
	}
}

// handleAt finds a resize grip of the single selected, unlocked element.
func (c *Canvas) handleAt(x, y float64) (string, Handle, bool) {
	ids := c.sel.IDs()
	if len(ids) != 1 {
		return "", "", false
	}
	el, ok := c.store.Get(ids[0])
	if !ok || el.Locked || el.Page != c.sel.Page {
		return "", "", false
	}
	rects := handleRects(el.Rect, c.viewZoom())
	for _, h := range allHandles {
		if rects[h].Contains(x, y) {
			return el.ID, h, true
		}
	}
	return "", "", false
}

// PointerDown starts an interaction at ev.
func (c *Canvas) PointerDown(ev PointerEvent) (Outcome, error) {
	x, y := c.toDoc(ev)
	c.g = gesture{startX: x, startY: y, curX: x, curY: y}

	if c.sel.Tool == ToolSelect {
		if id, h, ok := c.handleAt(x, y); ok {
			c.g.kind = gestureResize
			c.g.target = id
			c.g.handle = h
			el, _ := c.store.Get(id)
			c.g.origins = map[string]domain.Rect{id: el.Rect}
			return Outcome{Changed: true}, nil
		}
	}

	hit := c.HitTest(x, y)
	if kind, ok := c.sel.Tool.Inserts(); ok && hit == "" {
		el, err := c.sel.NewElement(kind, x, y)
		if err != nil {
			return Outcome{}, err
		}
		id, err := c.store.Add(el)
		if err != nil {
			return Outcome{}, err
		}
		c.sel.Set(id)
		c.sel.Tool = ToolSelect
		return Outcome{Changed: true, Commit: true, Created: id}, nil
	}

	if hit == "" {
		c.sel.Clear()
		c.g.kind = gestureMarquee
		return Outcome{Changed: true}, nil
	}

	switch {
	case ev.Shift:
		c.sel.Toggle(hit)
		if !c.sel.Has(hit) {
			return Outcome{Changed: true}, nil
		}
	case !c.sel.Has(hit):
		c.sel.Set(hit)
	}

	c.g.kind = gestureDrag
	c.g.origins = make(map[string]domain.Rect)
	for _, id := range c.sel.IDs() {
		if el, ok := c.store.Get(id); ok && !el.Locked {
			c.g.origins[id] = el.Rect
		}
	}
	return Outcome{Changed: true}, nil
}

// PointerMove applies a drag or resize live. Moves are not committed.
func (c *Canvas) PointerMove(ev PointerEvent) (Outcome, error) {
	if c.g.kind == gestureNone {
		return Outcome{}, nil
	}
	x, y := c.toDoc(ev)
	c.g.curX, c.g.curY = x, y
	dx, dy := x-c.g.startX, y-c.g.startY

	switch c.g.kind {
	case gestureDrag:
		if len(c.g.origins) == 0 {
			return Outcome{}, nil
		}
		for id, r := range c.g.origins {
			if err := c.store.Update(id, domain.Move(r.X+dx, r.Y+dy)); err != nil {
				return Outcome{}, err
			}
		}
		c.g.moved = c.g.moved || dx != 0 || dy != 0
	case gestureResize:
		r := resizeRect(c.g.origins[c.g.target], c.g.handle, dx, dy)
		if err := c.store.Update(c.g.target, domain.Resize(r)); err != nil {
			return Outcome{}, err
		}
		c.g.moved = c.g.moved || dx != 0 || dy != 0
	}
	return Outcome{Changed: true}, nil
}

// PointerUp ends the interaction. A drag or resize that moved commits once.
func (c *Canvas) PointerUp(ev PointerEvent) (Outcome, error) {
	if c.g.kind == gestureNone {
		return Outcome{}, nil
	}
	if _, err := c.PointerMove(ev); err != nil {
		c.g = gesture{}
		return Outcome{}, err
	}
	g := c.g
	c.g = gesture{}

	switch g.kind {
	case gestureMarquee:
		box := domain.Rect{X: g.startX, Y: g.startY, Width: g.curX - g.startX, Height: g.curY - g.startY}.Normalize()
		var ids []string
		for _, el := range c.store.ElementsForPage(c.sel.Page) {
			if box.Intersects(el.Rect.Normalize()) {
				ids = append(ids, el.ID)
			}
		}
		c.sel.Set(ids...)
		return Outcome{Changed: true}, nil
	case gestureDrag, gestureResize:
		return Outcome{Changed: true, Commit: g.moved}, nil
	}
	return Outcome{}, nil
}

// Cancel abandons the current gesture without committing it.
func (c *Canvas) Cancel() {
	c.g = gesture{}
}

func resizeRect(r domain.Rect, h Handle, dx, dy float64) domain.Rect {
	left, top := r.X, r.Y
	right, bottom := r.X+r.Width, r.Y+r.Height
	switch h {
	case HandleNW:
		left, top = left+dx, top+dy
	case HandleNE:
		right, top = right+dx, top+dy
	case HandleSW:
		left, bottom = left+dx, bottom+dy
	case HandleSE:
		right, bottom = right+dx, bottom+dy
	}
	out := domain.Rect{X: left, Y: top, Width: right - left, Height: bottom - top}.Normalize()
	out.Width = math.Max(out.Width, minElementSize)
	out.Height = math.Max(out.Height, minElementSize)
	return out
}

// Layers composes the paint list for the current page: the background
// render, elements in ascending Z, then interaction feedback.
func (c *Canvas) Layers(bg *domain.PageRender) []Layer {
	var layers []Layer
	if bg != nil {
		layers = append(layers, Layer{
			Kind:     LayerBackground,
			Rect:     domain.Rect{Width: float64(bg.Width), Height: float64(bg.Height)},
			ImageURL: bg.ImageURL,
		})
	}
	for _, el := range c.store.ElementsForPage(c.sel.Page) {
		layers = append(layers, Layer{Kind: LayerElement, Rect: el.Rect, Element: &el, ElementID: el.ID})
	}

	switch c.g.kind {
	case gestureDrag:
		if c.g.moved {
			for id, r := range c.g.origins {
				layers = append(layers, Layer{Kind: LayerDragPreview, Rect: r, ElementID: id})
			}
		}
	case gestureMarquee:
		box := domain.Rect{X: c.g.startX, Y: c.g.startY, Width: c.g.curX - c.g.startX, Height: c.g.curY - c.g.startY}
		layers = append(layers, Layer{Kind: LayerMarquee, Rect: box.Normalize()})
	}

	for _, id := range c.sel.IDs() {
		el, ok := c.store.Get(id)
		if !ok || el.Page != c.sel.Page {
			continue
		}
		l := Layer{Kind: LayerHandles, Rect: el.Rect, ElementID: id}
		if !el.Locked {
			l.Handles = handleRects(el.Rect, c.viewZoom())
		}
		layers = append(layers, l)
	}
	return layers
}
