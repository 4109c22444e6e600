package pdfdoc

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"qrstudio/internal/domain"
)

const (
	baselineTolerance = 0.5  // points
	spaceGapRatio     = 0.2  // gap, as a fraction of font size, read as a space
	breakGapRatio     = 1.5  // gap that starts a new run
	overlapRatio      = -0.5 // backwards step that starts a new run
)

// groupRuns merges glyphs that share font, size and baseline and sit next to
// each other into runs. Coordinates are flipped to a top-left origin.
func groupRuns(page int, pageHeight float64, glyphs []pdf.Text) []domain.TextRun {
	var (
		runs []domain.TextRun
		cur  *runBuilder
	)
	flush := func() {
		if cur != nil {
			if run, ok := cur.build(page, pageHeight); ok {
				runs = append(runs, run)
			}
			cur = nil
		}
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil && cur.accepts(g) {
			cur.add(g)
			continue
		}
		flush()
		cur = newRunBuilder(g)
	}
	flush()
	return runs
}

type runBuilder struct {
	font     string
	size     float64
	baseline float64
	minX     float64
	maxX     float64
	text     strings.Builder
}

func newRunBuilder(g pdf.Text) *runBuilder {
	b := &runBuilder{font: g.Font, size: g.FontSize, baseline: g.Y, minX: g.X, maxX: g.X + g.W}
	b.text.WriteString(g.S)
	return b
}

func (b *runBuilder) accepts(g pdf.Text) bool {
	if g.Font != b.font || g.FontSize != b.size {
		return false
	}
	if math.Abs(g.Y-b.baseline) > baselineTolerance {
		return false
	}
	gap := g.X - b.maxX
	size := b.size
	if size <= 0 {
		size = 1
	}
	return gap <= size*breakGapRatio && gap >= size*overlapRatio
}

func (b *runBuilder) add(g pdf.Text) {
	gap := g.X - b.maxX
	size := b.size
	if size <= 0 {
		size = 1
	}
	if gap > size*spaceGapRatio && !strings.HasSuffix(b.text.String(), " ") && g.S != " " {
		b.text.WriteByte(' ')
	}
	b.text.WriteString(g.S)
	if end := g.X + g.W; end > b.maxX {
		b.maxX = end
	}
}

func (b *runBuilder) build(page int, pageHeight float64) (domain.TextRun, bool) {
	text := strings.TrimSpace(b.text.String())
	if text == "" {
		return domain.TextRun{}, false
	}
	return domain.TextRun{
		Page:     page,
		X:        b.minX,
		Y:        pageHeight - b.baseline - b.size,
		Width:    b.maxX - b.minX,
		Height:   b.size,
		FontName: b.font,
		FontSize: b.size,
		Text:     text,
	}, true
}
