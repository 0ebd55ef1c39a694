package models

// BusinessRecord is one row of the external directory sheet. The column set
// is owned by the sheet, so rows are kept schemaless and passed through to
// the completion call as-is.
type BusinessRecord map[string]any

// BusinessMatch is a candidate surfaced by the matcher for a single reply.
// It is rendered into the response and never persisted.
type BusinessMatch struct {
	Name            string   `json:"name"`
	PrimaryServices string   `json:"primaryServices"`
	Categories      []string `json:"categories"`
	Phone           string   `json:"phone,omitempty"`
	Email           string   `json:"email,omitempty"`
	Website         string   `json:"website,omitempty"`
}
