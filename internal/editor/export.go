package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"qrstudio/internal/domain"
)

// Converter is the remote conversion service as seen by the export pipeline.
type Converter interface {
	Finalize(ctx context.Context, sourceURL string, mods domain.ModificationPayload) (string, error)
	ConvertToImages(ctx context.Context, url string, opts domain.ImageOptions) ([]string, error)
	Export(ctx context.Context, url string, format domain.ExportFormat) (string, error)
}

// RasterJob is everything the local renderer needs to draw pages itself.
type RasterJob struct {
	Doc      domain.DocumentInfo
	Pages    []int
	Elements []domain.Element
	Format   domain.ExportFormat
	DPI      int
	Quality  int
}

// Rasterizer renders pages locally when the remote service is unavailable.
type Rasterizer interface {
	Rasterize(ctx context.Context, job RasterJob) ([]string, error)
}

// QREncoder turns a QR body into an image data URL of the given pixel size.
type QREncoder func(body domain.QRBody, size int) (string, error)

const defaultDPI = 150

// ExportJob is a point-in-time copy of the session state to export.
type ExportJob struct {
	Doc         domain.DocumentInfo
	Elements    []domain.Element
	CurrentPage int
	Request     domain.ExportRequest
}

// Exporter serializes elements into modifications and drives the remote
// conversion, falling back to local rasterization for image formats.
type Exporter struct {
	conv     Converter
	local    Rasterizer // may be nil
	encodeQR QREncoder
}

func NewExporter(conv Converter, local Rasterizer, encodeQR QREncoder) *Exporter {
	return &Exporter{conv: conv, local: local, encodeQR: encodeQR}
}

// Export runs one export job. It reads job.Elements only.
func (x *Exporter) Export(ctx context.Context, job ExportJob) (*domain.ExportResult, error) {
	req := job.Request
	if !req.Format.Valid() {
		return nil, fmt.Errorf("%w: unsupported export format %q", domain.ErrValidation, req.Format)
	}
	pages, err := req.Pages.Resolve(job.Doc.PageCount, job.CurrentPage)
	if err != nil {
		return nil, err
	}
	mods, err := x.BuildModifications(job.Elements, pages)
	if err != nil {
		return nil, err
	}

	result := &domain.ExportResult{Format: req.Format}
	switch {
	case req.Format == domain.ExportPDF:
		url, err := x.conv.Finalize(ctx, job.Doc.SourceURL, mods)
		if err != nil {
			return nil, fmt.Errorf("finalize document: %w", err)
		}
		result.URLs = []string{url}

	case req.Format.IsOffice():
		url, err := x.conv.Finalize(ctx, job.Doc.SourceURL, mods)
		if err != nil {
			return nil, fmt.Errorf("finalize document: %w", err)
		}
		out, err := x.conv.Export(ctx, url, req.Format)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", req.Format, err)
		}
		result.URLs = []string{out}

	default:
		urls, remoteErr := x.remoteRaster(ctx, job, mods, pages)
		if remoteErr == nil {
			result.URLs = urls
			break
		}
		log.Printf("[Export] remote rasterization failed, rendering locally: %v", remoteErr)
		if x.local == nil {
			return nil, remoteErr
		}
		urls, localErr := x.local.Rasterize(ctx, RasterJob{
			Doc:      job.Doc,
			Pages:    pages,
			Elements: job.Elements,
			Format:   req.Format,
			DPI:      dpiOrDefault(req.DPI),
			Quality:  req.Quality,
		})
		if localErr != nil {
			return nil, errors.Join(remoteErr, fmt.Errorf("local rasterization: %w", localErr))
		}
		result.URLs = urls
		result.Fallback = true
	}
	return result, nil
}

func (x *Exporter) remoteRaster(ctx context.Context, job ExportJob, mods domain.ModificationPayload, pages []int) ([]string, error) {
	url, err := x.conv.Finalize(ctx, job.Doc.SourceURL, mods)
	if err != nil {
		return nil, fmt.Errorf("finalize document: %w", err)
	}
	urls, err := x.conv.ConvertToImages(ctx, url, domain.ImageOptions{
		Format:  job.Request.Format,
		DPI:     dpiOrDefault(job.Request.DPI),
		Quality: job.Request.Quality,
		Pages:   pages,
	})
	if err != nil {
		return nil, fmt.Errorf("convert to images: %w", err)
	}
	return urls, nil
}

func dpiOrDefault(dpi int) int {
	if dpi <= 0 {
		return defaultDPI
	}
	return dpi
}

// BuildModifications groups elements by page in paint order, keeping only
// the given pages. QR bodies are encoded to image data.
func (x *Exporter) BuildModifications(elements []domain.Element, pages []int) (domain.ModificationPayload, error) {
	store := NewStore()
	store.Replace(elements)

	var payload domain.ModificationPayload
	for _, p := range pages {
		pm := domain.PageModifications{Page: p, Modifications: []domain.Modification{}}
		for _, el := range store.ElementsForPage(p) {
			m, err := x.modification(el)
			if err != nil {
				return payload, err
			}
			pm.Modifications = append(pm.Modifications, m)
		}
		payload.Pages = append(payload.Pages, pm)
	}
	return payload, nil
}

func (x *Exporter) modification(el domain.Element) (domain.Modification, error) {
	m := domain.Modification{
		ElementID: el.ID,
		Type:      el.Kind(),
		Rect:      el.Rect,
		Rotation:  el.Rotation,
		Opacity:   el.Opacity,
	}
	raw, err := json.Marshal(el.Body)
	if err != nil {
		return m, fmt.Errorf("encode element %s: %w", el.ID, err)
	}
	if err := json.Unmarshal(raw, &m.Props); err != nil {
		return m, fmt.Errorf("encode element %s: %w", el.ID, err)
	}

	switch b := el.Body.(type) {
	case domain.QRBody:
		if x.encodeQR == nil {
			return m, fmt.Errorf("%w: no QR encoder configured", domain.ErrValidation)
		}
		size := int(el.Rect.Width)
		if el.Rect.Height > el.Rect.Width {
			size = int(el.Rect.Height)
		}
		data, err := x.encodeQR(b, size*2)
		if err != nil {
			return m, fmt.Errorf("encode QR for element %s: %w", el.ID, err)
		}
		m.ImageData = data
	case domain.ImageBody:
		m.ImageData = b.Source
	}
	return m, nil
}
