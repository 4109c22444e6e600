package domain

import "fmt"

// ExportFormat is the requested output of the export pipeline.
type ExportFormat string

const (
	ExportPDF  ExportFormat = "pdf"
	ExportPNG  ExportFormat = "png"
	ExportJPG  ExportFormat = "jpg"
	ExportDOCX ExportFormat = "docx"
	ExportPPTX ExportFormat = "pptx"
	ExportXLSX ExportFormat = "xlsx"
)

// IsRaster reports whether the format produces one image per page.
func (f ExportFormat) IsRaster() bool { return f == ExportPNG || f == ExportJPG }

// IsOffice reports whether the format needs the remote office conversion.
func (f ExportFormat) IsOffice() bool {
	return f == ExportDOCX || f == ExportPPTX || f == ExportXLSX
}

func (f ExportFormat) Valid() bool {
	return f == ExportPDF || f.IsRaster() || f.IsOffice()
}

type PageSelectionMode string

const (
	PagesAll     PageSelectionMode = "all"
	PagesCurrent PageSelectionMode = "current"
	PagesRange   PageSelectionMode = "range"
)

// PageSelection filters which pages an export covers. From/To are 1-based
// and inclusive; they are only read in range mode.
type PageSelection struct {
	Mode PageSelectionMode `json:"mode"`
	From int               `json:"from,omitempty"`
	To   int               `json:"to,omitempty"`
}

// Resolve expands the selection against a document of pageCount pages.
func (s PageSelection) Resolve(pageCount, current int) ([]int, error) {
	if pageCount < 1 {
		return nil, fmt.Errorf("%w: document has no pages", ErrValidation)
	}
	switch s.Mode {
	case PagesAll, "":
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	case PagesCurrent:
		if current < 1 || current > pageCount {
			return nil, fmt.Errorf("%w: current page %d out of range", ErrValidation, current)
		}
		return []int{current}, nil
	case PagesRange:
		if s.From < 1 || s.To > pageCount || s.From > s.To {
			return nil, fmt.Errorf("%w: page range %d-%d invalid for %d pages", ErrValidation, s.From, s.To, pageCount)
		}
		pages := make([]int, 0, s.To-s.From+1)
		for p := s.From; p <= s.To; p++ {
			pages = append(pages, p)
		}
		return pages, nil
	default:
		return nil, fmt.Errorf("%w: unknown page selection %q", ErrValidation, s.Mode)
	}
}

// ExportRequest is what the user asks the export pipeline for.
type ExportRequest struct {
	Format  ExportFormat  `json:"format"`
	DPI     int           `json:"dpi,omitempty"`
	Quality int           `json:"quality,omitempty"` // 1-100, jpg only
	Pages   PageSelection `json:"pages"`
}

// ExportResult references the produced artifacts.
type ExportResult struct {
	Format   ExportFormat `json:"format"`
	URLs     []string     `json:"urls"`
	Fallback bool         `json:"fallback"` // produced by the local renderer
}

// Modification is one overlay the conversion service burns into a page.
// QR and image overlays travel as ImageData so the service does no encoding.
type Modification struct {
	ElementID string         `json:"elementId"`
	Type      ElementKind    `json:"type"`
	Rect      Rect           `json:"rect"`
	Rotation  float64        `json:"rotation"`
	Opacity   float64        `json:"opacity"`
	Props     map[string]any `json:"props,omitempty"`
	ImageData string         `json:"imageData,omitempty"`
}

// PageModifications groups overlays for one page, in paint order.
type PageModifications struct {
	Page          int            `json:"page"`
	Modifications []Modification `json:"modifications"`
}

// ModificationPayload is the body of a finalize request.
type ModificationPayload struct {
	Pages []PageModifications `json:"pages"`
}

// ImageOptions controls remote page rasterization.
type ImageOptions struct {
	Format  ExportFormat `json:"format"`
	DPI     int          `json:"dpi"`
	Quality int          `json:"quality,omitempty"`
	Pages   []int        `json:"pages,omitempty"`
}
