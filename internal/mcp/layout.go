package mcpserver

import (
	"math"

	"qrstudio/internal/domain"
)

const (
	GridSize = 12.0 // points
	Margin   = 24.0 // kept clear along the page edges
	Padding  = 12.0 // between placed elements
)

// LayoutEngine places agent-created elements on a page so that they don't
// cover existing overlays.
type LayoutEngine struct {
	gridSize float64
	margin   float64
	padding  float64
}

func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{gridSize: GridSize, margin: Margin, padding: Padding}
}

// snap rounds v to the nearest grid point.
func (le *LayoutEngine) snap(v float64) float64 {
	return math.Round(v/le.gridSize) * le.gridSize
}

// rect is a simple axis-aligned bounding box.
type rect struct {
	x, y, w, h float64
}

func (a rect) intersects(b rect) bool {
	return a.x < b.x+b.w && a.x+a.w > b.x &&
		a.y < b.y+b.h && a.y+a.h > b.y
}

// NextPosition finds a free grid position for an element of size (newW, newH)
// on a page of the given size. Existing elements must belong to that page.
// When the page is full the element goes to the bottom-right margin corner.
func (le *LayoutEngine) NextPosition(existing []domain.Element, page domain.Size, newW, newH float64) (float64, float64) {
	occupied := make([]rect, len(existing))
	for i, e := range existing {
		occupied[i] = rect{
			x: e.Rect.X - le.padding,
			y: e.Rect.Y - le.padding,
			w: e.Rect.Width + le.padding*2,
			h: e.Rect.Height + le.padding*2,
		}
	}

	// Scan rows top-to-bottom, columns left-to-right
	candidate := rect{w: newW, h: newH}
	maxX := page.Width - le.margin - newW
	maxY := page.Height - le.margin - newH
	for y := le.margin; y <= maxY; y += le.gridSize {
		for x := le.margin; x <= maxX; x += le.gridSize {
			candidate.x = le.snap(x)
			candidate.y = le.snap(y)

			overlaps := false
			for _, occ := range occupied {
				if candidate.intersects(occ) {
					overlaps = true
					break
				}
			}
			if !overlaps {
				return candidate.x, candidate.y
			}
		}
	}

	return math.Max(0, page.Width-le.margin-newW), math.Max(0, page.Height-le.margin-newH)
}
