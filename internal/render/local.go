// Package render draws documents locally: the raster fallback used when the
// conversion service is unavailable, and campaign print sheets.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/fogleman/gg"
	"github.com/google/uuid"

	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
	"qrstudio/internal/objstore"
	"qrstudio/internal/qr"
)

// Fetcher reads the bytes behind a URL or path.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// Local rasterizes pages from their cached background renders plus element
// overlays, and stores the results in the object store.
type Local struct {
	Store  objstore.Store
	Fetch  Fetcher // may be nil: pages are drawn on white
	Prefix string  // object path prefix, default "renders"
}

var _ editor.Rasterizer = (*Local)(nil)

func NewLocal(store objstore.Store, fetch Fetcher) *Local {
	return &Local{Store: store, Fetch: fetch, Prefix: "renders"}
}

func (l *Local) Rasterize(ctx context.Context, job editor.RasterJob) ([]string, error) {
	if l.Store == nil {
		return nil, fmt.Errorf("local render: no object store")
	}
	if !job.Format.IsRaster() {
		return nil, fmt.Errorf("%w: local render supports png and jpg, not %s", domain.ErrValidation, job.Format)
	}
	if job.DPI <= 0 {
		job.DPI = 150
	}

	prefix := l.Prefix
	if prefix == "" {
		prefix = "renders"
	}
	batch := uuid.NewString()
	urls := make([]string, 0, len(job.Pages))
	for _, page := range job.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := l.Page(ctx, job, page)
		if err != nil {
			return nil, err
		}
		data, contentType, err := encode(img, job.Format, job.Quality)
		if err != nil {
			return nil, fmt.Errorf("encode page %d: %w", page, err)
		}
		path := fmt.Sprintf("%s/%s/page-%d.%s", prefix, batch, page, job.Format)
		url, err := l.Store.Put(ctx, path, bytes.NewReader(data), contentType)
		if err != nil {
			return nil, fmt.Errorf("store page %d: %w", page, err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// Page draws one page at the job's DPI.
func (l *Local) Page(ctx context.Context, job editor.RasterJob, page int) (image.Image, error) {
	if page < 1 || page > len(job.Doc.PageSizes) {
		return nil, fmt.Errorf("%w: page %d out of range", domain.ErrValidation, page)
	}
	scale := float64(job.DPI) / 72
	size := job.Doc.PageSizes[page-1]
	w := int(math.Round(size.Width * scale))
	h := int(math.Round(size.Height * scale))

	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()
	l.drawBackground(ctx, dc, job.Doc, page, w, h)

	var els []domain.Element
	for _, el := range job.Elements {
		if el.Page == page {
			els = append(els, el)
		}
	}
	sort.SliceStable(els, func(i, j int) bool { return els[i].Z < els[j].Z })
	for _, el := range els {
		if err := l.drawElement(ctx, dc, el, scale); err != nil {
			log.Printf("[Export] local render: skip element %s: %v", el.ID, err)
		}
	}
	return dc.Image(), nil
}

func (l *Local) drawBackground(ctx context.Context, dc *gg.Context, doc domain.DocumentInfo, page, w, h int) {
	if l.Fetch == nil {
		return
	}
	var src string
	for _, pr := range doc.Pages {
		if pr.Page == page {
			src = pr.ImageURL
		}
	}
	if src == "" {
		return
	}
	img, err := l.loadImage(ctx, src)
	if err != nil {
		log.Printf("[Export] local render: page %d background unavailable: %v", page, err)
		return
	}
	drawFitted(dc, img, domain.Rect{Width: float64(w), Height: float64(h)}, "stretch")
}

func (l *Local) loadImage(ctx context.Context, src string) (image.Image, error) {
	var data []byte
	if strings.HasPrefix(src, "data:") {
		b, err := decodeDataURL(src)
		if err != nil {
			return nil, err
		}
		data = b
	} else {
		if l.Fetch == nil {
			return nil, fmt.Errorf("no fetcher for %s", src)
		}
		b, err := l.Fetch.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		data = b
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func (l *Local) drawElement(ctx context.Context, dc *gg.Context, el domain.Element, scale float64) error {
	r := domain.Rect{
		X:      el.Rect.X * scale,
		Y:      el.Rect.Y * scale,
		Width:  el.Rect.Width * scale,
		Height: el.Rect.Height * scale,
	}.Normalize()
	opacity := math.Min(el.Opacity, 1)
	if opacity <= 0 {
		return nil
	}

	dc.Push()
	defer dc.Pop()
	if el.Rotation != 0 {
		dc.RotateAbout(gg.Radians(el.Rotation), r.X+r.Width/2, r.Y+r.Height/2)
	}

	switch b := el.Body.(type) {
	case domain.TextBody:
		return drawText(dc, b, r, scale, opacity)
	case domain.ShapeBody:
		return drawShape(dc, b, r, scale, opacity)
	case domain.AnnotationBody:
		return drawAnnotation(dc, b, r, scale, opacity)
	case domain.ImageBody:
		if b.Source == "" {
			return nil
		}
		img, err := l.loadImage(ctx, b.Source)
		if err != nil {
			return err
		}
		drawFitted(dc, fade(img, opacity), r, b.Fit)
		return nil
	case domain.QRBody:
		side := int(math.Min(r.Width, r.Height))
		img, err := qr.Image(b.Content, qr.OptionsForBody(b, side))
		if err != nil {
			return err
		}
		drawFitted(dc, fade(img, opacity), r, "contain")
		return nil
	}
	return fmt.Errorf("unsupported element type %T", el.Body)
}

func drawText(dc *gg.Context, b domain.TextBody, r domain.Rect, scale, opacity float64) error {
	f, err := face(b.FontFamily, b.Bold, b.Italic, b.FontSize*scale)
	if err != nil {
		return err
	}
	c, err := colorOr(b.Color, color.Black)
	if err != nil {
		return err
	}
	dc.SetFontFace(f)
	dc.SetColor(withOpacity(c, opacity))

	align, ax := gg.AlignLeft, 0.0
	switch b.Align {
	case domain.AlignCenter:
		align, ax = gg.AlignCenter, 0.5
	case domain.AlignRight:
		align, ax = gg.AlignRight, 1
	}
	dc.DrawStringWrapped(b.Content, r.X+ax*r.Width, r.Y, ax, 0, r.Width, 1.2, align)
	return nil
}

func drawShape(dc *gg.Context, b domain.ShapeBody, r domain.Rect, scale, opacity float64) error {
	fill, err := colorOr(b.Fill, color.Transparent)
	if err != nil {
		return err
	}
	stroke, err := colorOr(b.Stroke, color.Black)
	if err != nil {
		return err
	}
	dc.SetLineWidth(math.Max(b.StrokeWidth*scale, 0))

	switch b.Shape {
	case domain.ShapeEllipse:
		dc.DrawEllipse(r.X+r.Width/2, r.Y+r.Height/2, r.Width/2, r.Height/2)
	case domain.ShapeLine, domain.ShapeArrow:
		dc.SetColor(withOpacity(stroke, opacity))
		dc.DrawLine(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
		dc.Stroke()
		if b.Shape == domain.ShapeArrow {
			drawArrowHead(dc, r.X, r.Y, r.X+r.Width, r.Y+r.Height, math.Max(6*scale, b.StrokeWidth*scale*3))
		}
		return nil
	default:
		dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	}
	dc.SetColor(withOpacity(fill, opacity))
	dc.FillPreserve()
	if b.StrokeWidth > 0 {
		dc.SetColor(withOpacity(stroke, opacity))
		dc.Stroke()
	}
	dc.ClearPath()
	return nil
}

func drawArrowHead(dc *gg.Context, fx, fy, tx, ty, size float64) {
	dx, dy := tx-fx, ty-fy
	length := math.Hypot(dx, dy)
	if length < 0.1 {
		return
	}
	dx /= length
	dy /= length
	const spread = 0.5
	dc.MoveTo(tx, ty)
	dc.LineTo(tx-size*dx+size*dy*spread, ty-size*dy-size*dx*spread)
	dc.LineTo(tx-size*dx-size*dy*spread, ty-size*dy+size*dx*spread)
	dc.ClosePath()
	dc.Fill()
}

func drawAnnotation(dc *gg.Context, b domain.AnnotationBody, r domain.Rect, scale, opacity float64) error {
	c, err := colorOr(b.Color, color.NRGBA{R: 0xff, G: 0xeb, B: 0x3b, A: 0xff})
	if err != nil {
		return err
	}
	switch b.Annotation {
	case domain.AnnotationHighlight:
		dc.SetColor(withOpacity(c, opacity*0.4))
		dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
		dc.Fill()
	case domain.AnnotationUnderline, domain.AnnotationStrike:
		y := r.Y + r.Height
		if b.Annotation == domain.AnnotationStrike {
			y = r.Y + r.Height/2
		}
		dc.SetColor(withOpacity(c, opacity))
		dc.SetLineWidth(math.Max(1.5*scale, 1))
		dc.DrawLine(r.X, y, r.X+r.Width, y)
		dc.Stroke()
	case domain.AnnotationNote:
		dc.SetColor(withOpacity(c, opacity))
		dc.DrawRoundedRectangle(r.X, r.Y, r.Width, r.Height, 3*scale)
		dc.Fill()
		if b.Note != "" {
			f, err := face("", false, false, 10*scale)
			if err != nil {
				return err
			}
			dc.SetFontFace(f)
			dc.SetColor(withOpacity(color.Black, opacity))
			pad := 4 * scale
			dc.DrawStringWrapped(b.Note, r.X+pad, r.Y+pad, 0, 0, r.Width-2*pad, 1.2, gg.AlignLeft)
		}
	}
	return nil
}

// drawFitted draws img into r: "contain" letterboxes, "cover" crops and
// anything else stretches.
func drawFitted(dc *gg.Context, img image.Image, r domain.Rect, fit string) {
	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw == 0 || ih == 0 || r.Width <= 0 || r.Height <= 0 {
		return
	}
	sx, sy := r.Width/iw, r.Height/ih
	switch fit {
	case "contain":
		s := math.Min(sx, sy)
		sx, sy = s, s
	case "cover":
		s := math.Max(sx, sy)
		sx, sy = s, s
	}
	ox := r.X + (r.Width-iw*sx)/2
	oy := r.Y + (r.Height-ih*sy)/2

	dc.Push()
	if fit == "cover" {
		dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
		dc.Clip()
	}
	dc.Translate(ox, oy)
	dc.Scale(sx, sy)
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	dc.Pop()
}

func fade(img image.Image, opacity float64) image.Image {
	if opacity >= 1 {
		return img
	}
	out := image.NewNRGBA(img.Bounds())
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(out, out.Bounds(), img, img.Bounds().Min, mask, image.Point{}, draw.Over)
	return out
}

func colorOr(s string, fallback color.Color) (color.Color, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return qr.ParseColor(s)
}

func withOpacity(c color.Color, opacity float64) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * opacity)
	return n
}

func decodeDataURL(s string) ([]byte, error) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
		return nil, fmt.Errorf("%w: unsupported data URL", domain.ErrValidation)
	}
	return base64.StdEncoding.DecodeString(s[comma+1:])
}

func encode(img image.Image, format domain.ExportFormat, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	if format == domain.ExportJPG {
		if quality <= 0 || quality > 100 {
			quality = 90
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	dc := gg.NewContextForImage(img)
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/png", nil
}
