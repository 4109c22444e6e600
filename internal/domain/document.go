package domain

// PageRender is a rasterized background for one source-document page.
// Immutable once produced.
type PageRender struct {
	Page     int    `json:"page"`
	ImageURL string `json:"imageUrl"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// TextRun is a contiguous run of text extracted from a source page, in
// document coordinates (origin top-left).
type TextRun struct {
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontName string  `json:"fontName"`
	FontSize float64 `json:"fontSize"`
	Text     string  `json:"text"`
}

// TextMatch locates one search hit.
type TextMatch struct {
	Page  int    `json:"page"`
	Rect  Rect   `json:"rect"`
	Text  string `json:"text"`
	RunIx int    `json:"runIndex"`
}

// DocumentInfo describes the source document of an editor session.
type DocumentInfo struct {
	SourceURL string       `json:"sourceUrl"`
	PageCount int          `json:"pageCount"`
	PageSizes []Size       `json:"pageSizes"`
	Title     string       `json:"title,omitempty"`
	Pages     []PageRender `json:"pages"`
	TextRuns  []TextRun    `json:"textRuns"`
}

// Size is a width/height pair in PDF points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
