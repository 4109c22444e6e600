package qr

import (
	"encoding/json"
	"fmt"

	"qrstudio/internal/domain"
)

// Generated is a rendered QR code together with the payload it carries.
type Generated struct {
	Type    domain.QRType `json:"type"`
	Payload string        `json:"payload"`
	DataURL string        `json:"dataUrl"`
}

// Generator renders typed QR content through the form registry.
type Generator struct {
	forms *domain.QRFormRegistry
}

func NewGenerator(forms *domain.QRFormRegistry) *Generator {
	if forms == nil {
		forms = domain.NewQRFormRegistry()
	}
	return &Generator{forms: forms}
}

func (g *Generator) Forms() []domain.QRForm { return g.forms.Forms() }

// Generate validates content and renders it.
func (g *Generator) Generate(c domain.QRContent, o Options) (*Generated, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	payload := c.Payload()
	data, err := Encode(payload, o)
	if err != nil {
		return nil, fmt.Errorf("generate %s QR: %w", c.Type(), err)
	}
	return &Generated{Type: c.Type(), Payload: payload, DataURL: data}, nil
}

// GenerateJSON decodes raw form data of type t and renders it.
func (g *Generator) GenerateJSON(t domain.QRType, raw json.RawMessage, o Options) (*Generated, error) {
	c, err := g.forms.Decode(t, raw)
	if err != nil {
		return nil, err
	}
	return g.Generate(c, o)
}

// Payload builds the encoder payload for a campaign row without rendering.
func (g *Generator) Payload(t domain.QRType, defaults json.RawMessage, record map[string]any) (string, error) {
	c, err := g.forms.FromRecord(t, defaults, record)
	if err != nil {
		return "", err
	}
	return c.Payload(), nil
}
