package pdfdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"qrstudio/internal/domain"
)

// RenderCache stores page render lists per source document.
type RenderCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DocumentLoader opens a document for an editor session: page renders
// (cached per source and DPI) plus extracted text runs.
type DocumentLoader struct {
	Loader Loader
	Cache  RenderCache // may be nil
	TTL    time.Duration
	Render RenderOptions
}

func (d *DocumentLoader) Load(ctx context.Context, sourceURL string) (*domain.DocumentInfo, error) {
	h, err := d.Loader.Load(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", sourceURL, err)
	}

	pages, err := d.pages(ctx, h)
	if err != nil {
		return nil, err
	}
	runs, err := h.ExtractTextElements(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return &domain.DocumentInfo{
		SourceURL: sourceURL,
		PageCount: h.PageCount(),
		PageSizes: h.PageSizes(),
		Title:     h.Title(),
		Pages:     pages,
		TextRuns:  runs,
	}, nil
}

func (d *DocumentLoader) pages(ctx context.Context, h Handle) ([]domain.PageRender, error) {
	key := fmt.Sprintf("renders:%d:%s:%s", d.Render.DPI, d.Render.Format, h.SourceURL())
	if d.Cache != nil {
		if b, ok, err := d.Cache.Get(ctx, key); err != nil {
			log.Printf("[Editor] render cache get: %v", err)
		} else if ok {
			var cached []domain.PageRender
			if err := json.Unmarshal(b, &cached); err == nil && len(cached) == h.PageCount() {
				return cached, nil
			}
		}
	}

	pages, err := h.RenderAllPages(ctx, d.Render)
	if err != nil {
		return nil, err
	}
	if d.Cache != nil {
		if b, err := json.Marshal(pages); err == nil {
			if err := d.Cache.Set(ctx, key, b, d.TTL); err != nil {
				log.Printf("[Editor] render cache set: %v", err)
			}
		}
	}
	return pages, nil
}
