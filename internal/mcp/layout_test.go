package mcpserver

import (
	"testing"

	"qrstudio/internal/domain"
)

var a4 = domain.Size{Width: 595, Height: 842}

func at(x, y, w, h float64) domain.Element {
	return domain.Element{Page: 1, Rect: domain.Rect{X: x, Y: y, Width: w, Height: h}, Body: domain.QRBody{}}
}

func TestNextPosition_EmptyPage(t *testing.T) {
	le := NewLayoutEngine()
	x, y := le.NextPosition(nil, a4, 100, 100)
	if x != Margin || y != Margin {
		t.Errorf("expected (%.0f, %.0f) on an empty page, got (%.0f, %.0f)", Margin, Margin, x, y)
	}
}

func TestNextPosition_AvoidsExistingElement(t *testing.T) {
	le := NewLayoutEngine()
	existing := []domain.Element{at(24, 24, 200, 100)}
	x, y := le.NextPosition(existing, a4, 100, 100)

	placed := rect{x, y, 100, 100}
	occ := rect{24 - Padding, 24 - Padding, 200 + 2*Padding, 100 + 2*Padding}
	if placed.intersects(occ) {
		t.Errorf("position (%.0f, %.0f) overlaps existing element", x, y)
	}
	if x+100 > a4.Width-Margin || y+100 > a4.Height-Margin {
		t.Errorf("position (%.0f, %.0f) leaves the page margin", x, y)
	}
}

func TestNextPosition_SnapsToGrid(t *testing.T) {
	le := NewLayoutEngine()
	existing := []domain.Element{at(30, 30, 77, 51)}
	x, y := le.NextPosition(existing, a4, 60, 60)
	if x != le.snap(x) || y != le.snap(y) {
		t.Errorf("(%.1f, %.1f) is not on the grid", x, y)
	}
}

func TestNextPosition_FullPageFallsBackToCorner(t *testing.T) {
	le := NewLayoutEngine()
	existing := []domain.Element{at(0, 0, a4.Width, a4.Height)}
	x, y := le.NextPosition(existing, a4, 100, 100)
	if x != a4.Width-Margin-100 || y != a4.Height-Margin-100 {
		t.Errorf("fallback = (%.0f, %.0f)", x, y)
	}
}

func TestNextPosition_ElementLargerThanPage(t *testing.T) {
	le := NewLayoutEngine()
	x, y := le.NextPosition(nil, domain.Size{Width: 50, Height: 50}, 100, 100)
	if x != 0 || y != 0 {
		t.Errorf("oversize placement = (%.0f, %.0f)", x, y)
	}
}
