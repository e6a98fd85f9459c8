package model

import "encoding/json"

// Payload is the message body delivered to a background worker.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	URL   string         `json:"url,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Bytes encodes the payload as JSON.
func (p Payload) Bytes() ([]byte, error) {
	return json.Marshal(p)
}
