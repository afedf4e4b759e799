package entity

// Document is one source PDF plus whatever the reader could pull out of it.
// Immutable after the reader produces it; consumed once by the extraction
// client.
type Document struct {
	Filename      string   `json:"filename"`
	Path          string   `json:"path"`
	TotalPages    int      `json:"total_pages"`
	Text          string   `json:"text"`    // concatenated page text, may be empty
	IsScan        bool     `json:"is_scan"` // most pages had negligible text
	PageImagesB64 []string `json:"-"`       // base64 PNG per page, scans only
}

// Readable reports whether the reader produced any content to extract from.
func (d Document) Readable() bool {
	return d.TotalPages > 0
}
