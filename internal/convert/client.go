// Package convert is the client for the remote document conversion service:
// page rasterization, text replacement, office export and finalization of
// overlay modifications.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"qrstudio/internal/domain"
)

type Client struct {
	*http.Client // [Embedded]
	BaseURL      string
	APIKey       string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		Client:  &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
	}
}

// EditOptions tunes EditText.
type EditOptions struct {
	CaseSensitive bool  `json:"caseSensitive"`
	WholeWord     bool  `json:"wholeWord"`
	Pages         []int `json:"pages,omitempty"`
}

// EditResult is the rewritten document and how many replacements were made.
type EditResult struct {
	URL              string `json:"url"`
	ReplacementCount int    `json:"replacementCount"`
}

type imagesRequest struct {
	URL string `json:"url"`
	domain.ImageOptions
}

type imagesResponse struct {
	URLs []string `json:"urls"`
}

type editRequest struct {
	URL     string      `json:"url"`
	Find    []string    `json:"find"`
	Replace []string    `json:"replace"`
	Options EditOptions `json:"options"`
}

type exportRequest struct {
	URL    string              `json:"url"`
	Format domain.ExportFormat `json:"format"`
}

type finalizeRequest struct {
	URL           string                     `json:"url"`
	Modifications domain.ModificationPayload `json:"modifications"`
}

type urlResponse struct {
	URL string `json:"url"`
}

// ConvertToImages renders the requested pages of a document to images and
// returns one URL per page, in page order.
func (c *Client) ConvertToImages(ctx context.Context, url string, opts domain.ImageOptions) ([]string, error) {
	var out imagesResponse
	if err := c.post(ctx, "/convert-to-images", imagesRequest{URL: url, ImageOptions: opts}, &out); err != nil {
		return nil, fmt.Errorf("convert to images: %w", err)
	}
	if len(out.URLs) == 0 {
		return nil, fmt.Errorf("convert to images: %w: empty result", domain.ErrRemote)
	}
	return out.URLs, nil
}

// EditText replaces each find[i] with replace[i] throughout the document.
func (c *Client) EditText(ctx context.Context, url string, find, replace []string, opts EditOptions) (EditResult, error) {
	if len(find) == 0 || len(find) != len(replace) {
		return EditResult{}, fmt.Errorf("%w: find and replace lists must be non-empty and the same length", domain.ErrValidation)
	}
	var out EditResult
	if err := c.post(ctx, "/edit-text", editRequest{URL: url, Find: find, Replace: replace, Options: opts}, &out); err != nil {
		return EditResult{}, fmt.Errorf("edit text: %w", err)
	}
	return out, nil
}

// Export converts a document to another format and returns a download URL.
func (c *Client) Export(ctx context.Context, url string, format domain.ExportFormat) (string, error) {
	var out urlResponse
	if err := c.post(ctx, "/export", exportRequest{URL: url, Format: format}, &out); err != nil {
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("export %s: %w: no url in response", format, domain.ErrRemote)
	}
	return out.URL, nil
}

// Finalize burns the modifications into the source PDF and returns the URL of
// the resulting document.
func (c *Client) Finalize(ctx context.Context, url string, mods domain.ModificationPayload) (string, error) {
	var out urlResponse
	if err := c.post(ctx, "/finalize", finalizeRequest{URL: url, Modifications: mods}, &out); err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("finalize: %w: no url in response", domain.ErrRemote)
	}
	return out.URL, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			log.Printf("[Export] close response body: %v", cerr)
		}
	}()

	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		log.Printf("[Export] %s returned %d: %s", endpoint, res.StatusCode, strings.TrimSpace(string(msg)))
		return fmt.Errorf("%w: status %d", domain.ErrRemote, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrRemote, err)
	}
	return nil
}
