package render

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SheetItem is one cell of a campaign print sheet.
type SheetItem struct {
	Label string
	PNG   []byte // QR code image
}

// SheetOptions lays out the grid on A4 portrait, in millimetres.
type SheetOptions struct {
	Title   string
	Columns int
	CellMM  float64 // QR side
	Margin  float64
}

func (o SheetOptions) withDefaults() SheetOptions {
	if o.Columns <= 0 {
		o.Columns = 3
	}
	if o.CellMM <= 0 {
		o.CellMM = 45
	}
	if o.Margin <= 0 {
		o.Margin = 15
	}
	return o
}

const (
	pageW     = 210.0
	pageH     = 297.0
	labelH    = 6.0
	titleH    = 12.0
	cellGapMM = 5.0
)

// PrintSheet writes a PDF grid of QR codes with their labels.
func PrintSheet(w io.Writer, items []SheetItem, opts SheetOptions) error {
	opts = opts.withDefaults()
	p := gofpdf.New("P", "mm", "A4", "")
	p.SetTitle(opts.Title, true)
	p.SetCreator("qrstudio", true)
	p.SetAutoPageBreak(false, opts.Margin)

	colW := (pageW - 2*opts.Margin) / float64(opts.Columns)
	side := opts.CellMM
	if side > colW-cellGapMM {
		side = colW - cellGapMM
	}
	rowH := side + labelH + cellGapMM

	newPage := func() float64 {
		p.AddPage()
		p.SetFont("Helvetica", "B", 14)
		p.SetXY(opts.Margin, opts.Margin)
		p.CellFormat(pageW-2*opts.Margin, titleH-4, opts.Title, "", 0, "L", false, 0, "")
		p.SetFont("Helvetica", "", 8)
		p.SetXY(opts.Margin, opts.Margin+titleH-4)
		p.CellFormat(pageW-2*opts.Margin, 4, time.Now().Format("2006-01-02 15:04"), "", 0, "L", false, 0, "")
		p.SetFont("Helvetica", "", 9)
		return opts.Margin + titleH
	}

	y := newPage()
	for i, it := range items {
		col := i % opts.Columns
		if col == 0 && i > 0 {
			y += rowH
			if y+rowH > pageH-opts.Margin {
				y = newPage()
			}
		}
		x := opts.Margin + float64(col)*colW + (colW-side)/2

		name := fmt.Sprintf("qr-%d", i)
		imgOpts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		p.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(it.PNG))
		p.ImageOptions(name, x, y, side, side, false, imgOpts, 0, "")

		p.SetXY(opts.Margin+float64(col)*colW, y+side+1)
		p.CellFormat(colW, labelH-1, truncate(p, it.Label, colW-2), "", 0, "C", false, 0, "")
	}
	if err := p.Error(); err != nil {
		return fmt.Errorf("build print sheet: %w", err)
	}
	return p.Output(w)
}

func truncate(p *gofpdf.Fpdf, s string, width float64) string {
	if p.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && p.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
