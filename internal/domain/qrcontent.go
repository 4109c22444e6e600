package domain

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// QRType identifies what a QR code encodes.
type QRType string

const (
	QRURL      QRType = "url"
	QRText     QRType = "text"
	QREmail    QRType = "email"
	QRPhone    QRType = "phone"
	QRSMS      QRType = "sms"
	QRWiFi     QRType = "wifi"
	QRVCard    QRType = "vcard"
	QRLocation QRType = "location"
	QREvent    QRType = "event"
)

// QRContent is one typed QR payload variant.
type QRContent interface {
	Type() QRType
	Validate() error
	// Payload is the exact string handed to the encoder.
	Payload() string
}

type URLContent struct {
	URL string `json:"url"`
}

type TextContent struct {
	Text string `json:"text"`
}

type EmailContent struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type PhoneContent struct {
	Number string `json:"number"`
}

type SMSContent struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type WiFiContent struct {
	SSID       string `json:"ssid"`
	Password   string `json:"password"`
	Encryption string `json:"encryption"` // WPA, WEP, nopass
	Hidden     bool   `json:"hidden"`
}

type VCardContent struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Organization string `json:"organization"`
	Title        string `json:"title"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Website      string `json:"website"`
	Address      string `json:"address"`
}

type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label"`
}

type EventContent struct {
	Title    string    `json:"title"`
	Location string    `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Notes    string    `json:"notes"`
}

func (*URLContent) Type() QRType      { return QRURL }
func (*TextContent) Type() QRType     { return QRText }
func (*EmailContent) Type() QRType    { return QREmail }
func (*PhoneContent) Type() QRType    { return QRPhone }
func (*SMSContent) Type() QRType      { return QRSMS }
func (*WiFiContent) Type() QRType     { return QRWiFi }
func (*VCardContent) Type() QRType    { return QRVCard }
func (*LocationContent) Type() QRType { return QRLocation }
func (*EventContent) Type() QRType    { return QREvent }

func (c *URLContent) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", ErrValidation, c.URL)
	}
	return nil
}

func (c *URLContent) Payload() string { return c.URL }

func (c *TextContent) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	return nil
}

func (c *TextContent) Payload() string { return c.Text }

func (c *EmailContent) Validate() error {
	if _, err := mail.ParseAddress(c.To); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, c.To)
	}
	return nil
}

func (c *EmailContent) Payload() string {
	q := url.Values{}
	if c.Subject != "" {
		q.Set("subject", c.Subject)
	}
	if c.Body != "" {
		q.Set("body", c.Body)
	}
	s := "mailto:" + c.To
	if len(q) > 0 {
		s += "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
	}
	return s
}

func (c *PhoneContent) Validate() error { return validatePhone(c.Number) }

func (c *PhoneContent) Payload() string { return "tel:" + c.Number }

func (c *SMSContent) Validate() error { return validatePhone(c.Number) }

func (c *SMSContent) Payload() string { return "SMSTO:" + c.Number + ":" + c.Message }

func (c *WiFiContent) Validate() error {
	if c.SSID == "" {
		return fmt.Errorf("%w: ssid is required", ErrValidation)
	}
	switch c.Encryption {
	case "", "WPA", "WEP", "nopass":
	default:
		return fmt.Errorf("%w: unknown encryption %q", ErrValidation, c.Encryption)
	}
	if c.Encryption != "nopass" && c.Password == "" {
		return fmt.Errorf("%w: password is required for %s networks", ErrValidation, c.encryption())
	}
	return nil
}

func (c *WiFiContent) encryption() string {
	if c.Encryption == "" {
		return "WPA"
	}
	return c.Encryption
}

func (c *WiFiContent) Payload() string {
	var b strings.Builder
	b.WriteString("WIFI:T:" + c.encryption() + ";S:" + escapeWiFi(c.SSID) + ";")
	if c.encryption() != "nopass" {
		b.WriteString("P:" + escapeWiFi(c.Password) + ";")
	}
	if c.Hidden {
		b.WriteString("H:true;")
	}
	b.WriteString(";")
	return b.String()
}

func (c *VCardContent) Validate() error {
	if c.FirstName == "" && c.LastName == "" && c.Organization == "" {
		return fmt.Errorf("%w: a name or organization is required", ErrValidation)
	}
	return nil
}

func (c *VCardContent) Payload() string {
	lines := []string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"N:" + c.LastName + ";" + c.FirstName + ";;;",
		"FN:" + strings.TrimSpace(c.FirstName+" "+c.LastName),
	}
	add := func(prefix, v string) {
		if v != "" {
			lines = append(lines, prefix+v)
		}
	}
	add("ORG:", c.Organization)
	add("TITLE:", c.Title)
	add("TEL:", c.Phone)
	add("EMAIL:", c.Email)
	add("URL:", c.Website)
	add("ADR:;;", c.Address)
	lines = append(lines, "END:VCARD")
	return strings.Join(lines, "\n")
}

func (c *LocationContent) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	return nil
}

func (c *LocationContent) Payload() string {
	s := fmt.Sprintf("geo:%g,%g", c.Latitude, c.Longitude)
	if c.Label != "" {
		s += "?q=" + url.QueryEscape(c.Label)
	}
	return s
}

func (c *EventContent) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("%w: event title is required", ErrValidation)
	}
	if c.Start.IsZero() {
		return fmt.Errorf("%w: event start is required", ErrValidation)
	}
	if !c.End.IsZero() && c.End.Before(c.Start) {
		return fmt.Errorf("%w: event ends before it starts", ErrValidation)
	}
	return nil
}

func (c *EventContent) Payload() string {
	const layout = "20060102T150405Z"
	lines := []string{"BEGIN:VEVENT", "SUMMARY:" + c.Title, "DTSTART:" + c.Start.UTC().Format(layout)}
	if !c.End.IsZero() {
		lines = append(lines, "DTEND:"+c.End.UTC().Format(layout))
	}
	if c.Location != "" {
		lines = append(lines, "LOCATION:"+c.Location)
	}
	if c.Notes != "" {
		lines = append(lines, "DESCRIPTION:"+c.Notes)
	}
	lines = append(lines, "END:VEVENT")
	return strings.Join(lines, "\n")
}

func validatePhone(n string) error {
	digits := 0
	for _, r := range n {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return fmt.Errorf("%w: invalid phone number %q", ErrValidation, n)
		}
	}
	if digits < 3 {
		return fmt.Errorf("%w: invalid phone number %q", ErrValidation, n)
	}
	return nil
}

var wifiEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`, `"`, `\"`)

func escapeWiFi(s string) string { return wifiEscaper.Replace(s) }

// ── Form registry ──────────────────────────────────────────

// FormField describes one input of a QR content form. The frontend renders
// the form from these descriptors.
type FormField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "textarea" | "number" | "bool" | "select" | "datetime" | "password"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// QRForm is the registry entry for one content type.
type QRForm struct {
	Type   QRType           `json:"type"`
	Label  string           `json:"label"`
	Fields []FormField      `json:"fields"`
	New    func() QRContent `json:"-"`
}

// QRFormRegistry dispatches QR content decoding by type id.
type QRFormRegistry struct {
	forms map[QRType]QRForm
	order []QRType
}

// NewQRFormRegistry returns a registry holding every built-in content type.
func NewQRFormRegistry() *QRFormRegistry {
	r := &QRFormRegistry{forms: map[QRType]QRForm{}}
	r.Register(QRForm{Type: QRURL, Label: "Website", New: func() QRContent { return &URLContent{} },
		Fields: []FormField{{Key: "url", Label: "URL", Type: "string", Required: true}}})
	r.Register(QRForm{Type: QRText, Label: "Plain text", New: func() QRContent { return &TextContent{} },
		Fields: []FormField{{Key: "text", Label: "Text", Type: "textarea", Required: true}}})
	r.Register(QRForm{Type: QREmail, Label: "Email", New: func() QRContent { return &EmailContent{} },
		Fields: []FormField{
			{Key: "to", Label: "To", Type: "string", Required: true},
			{Key: "subject", Label: "Subject", Type: "string"},
			{Key: "body", Label: "Body", Type: "textarea"},
		}})
	r.Register(QRForm{Type: QRPhone, Label: "Phone", New: func() QRContent { return &PhoneContent{} },
		Fields: []FormField{{Key: "number", Label: "Number", Type: "string", Required: true}}})
	r.Register(QRForm{Type: QRSMS, Label: "SMS", New: func() QRContent { return &SMSContent{} },
		Fields: []FormField{
			{Key: "number", Label: "Number", Type: "string", Required: true},
			{Key: "message", Label: "Message", Type: "textarea"},
		}})
	r.Register(QRForm{Type: QRWiFi, Label: "Wi-Fi", New: func() QRContent { return &WiFiContent{} },
		Fields: []FormField{
			{Key: "ssid", Label: "Network name", Type: "string", Required: true},
			{Key: "password", Label: "Password", Type: "password"},
			{Key: "encryption", Label: "Encryption", Type: "select", Options: []string{"WPA", "WEP", "nopass"}},
			{Key: "hidden", Label: "Hidden network", Type: "bool"},
		}})
	r.Register(QRForm{Type: QRVCard, Label: "Contact card", New: func() QRContent { return &VCardContent{} },
		Fields: []FormField{
			{Key: "firstName", Label: "First name", Type: "string"},
			{Key: "lastName", Label: "Last name", Type: "string"},
			{Key: "organization", Label: "Organization", Type: "string"},
			{Key: "title", Label: "Title", Type: "string"},
			{Key: "phone", Label: "Phone", Type: "string"},
			{Key: "email", Label: "Email", Type: "string"},
			{Key: "website", Label: "Website", Type: "string"},
			{Key: "address", Label: "Address", Type: "textarea"},
		}})
	r.Register(QRForm{Type: QRLocation, Label: "Location", New: func() QRContent { return &LocationContent{} },
		Fields: []FormField{
			{Key: "latitude", Label: "Latitude", Type: "number", Required: true},
			{Key: "longitude", Label: "Longitude", Type: "number", Required: true},
			{Key: "label", Label: "Label", Type: "string"},
		}})
	r.Register(QRForm{Type: QREvent, Label: "Event", New: func() QRContent { return &EventContent{} },
		Fields: []FormField{
			{Key: "title", Label: "Title", Type: "string", Required: true},
			{Key: "location", Label: "Location", Type: "string"},
			{Key: "start", Label: "Starts", Type: "datetime", Required: true},
			{Key: "end", Label: "Ends", Type: "datetime"},
			{Key: "notes", Label: "Notes", Type: "textarea"},
		}})
	return r
}

// Register adds or replaces a form.
func (r *QRFormRegistry) Register(f QRForm) {
	if _, exists := r.forms[f.Type]; !exists {
		r.order = append(r.order, f.Type)
	}
	r.forms[f.Type] = f
}

// Forms lists registered forms in registration order.
func (r *QRFormRegistry) Forms() []QRForm {
	out := make([]QRForm, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.forms[t])
	}
	return out
}

// Decode parses and validates content of the given type.
func (r *QRFormRegistry) Decode(t QRType, data json.RawMessage) (QRContent, error) {
	f, ok := r.forms[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown QR type %q", ErrValidation, t)
	}
	c := f.New()
	if len(data) > 0 {
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("%w: decode %s content: %v", ErrValidation, t, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromRecord builds content from a campaign data row. Keys present in record
// override the campaign defaults.
func (r *QRFormRegistry) FromRecord(t QRType, defaults json.RawMessage, record map[string]any) (QRContent, error) {
	f, ok := r.forms[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown QR type %q", ErrValidation, t)
	}
	c := f.New()
	if len(defaults) > 0 {
		if err := json.Unmarshal(defaults, c); err != nil {
			return nil, fmt.Errorf("%w: decode %s defaults: %v", ErrValidation, t, err)
		}
	}
	data, err := json.Marshal(coerceRecord(f.Fields, record))
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: row does not match %s fields: %v", ErrValidation, t, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// coerceRecord keeps only the form's keys and converts imported values to
// the JSON types the content struct expects. CSV cells arrive as strings or
// inferred numbers regardless of the target field.
func coerceRecord(fields []FormField, record map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := record[f.Key]
		if !ok || v == nil {
			continue
		}
		switch f.Type {
		case "number":
			switch n := v.(type) {
			case float64, int, int64:
				out[f.Key] = n
			default:
				if parsed, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64); err == nil {
					out[f.Key] = parsed
				}
			}
		case "bool":
			switch b := v.(type) {
			case bool:
				out[f.Key] = b
			default:
				parsed, _ := strconv.ParseBool(strings.TrimSpace(fmt.Sprint(v)))
				out[f.Key] = parsed
			}
		case "datetime":
			if t, ok := coerceTime(v); ok {
				out[f.Key] = t.Format(time.RFC3339)
			}
		default:
			out[f.Key] = fmt.Sprint(v)
		}
	}
	return out
}

var recordTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func coerceTime(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), true
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	for _, layout := range recordTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
