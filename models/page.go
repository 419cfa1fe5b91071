package models

import (
	"encoding/json"
	"fmt"
)

// PageDocument is the canonical local representation of one page: the JSON
// document stored under the content directory. RemoteID is carried for
// operator convenience but is excluded from fingerprinting: fingerprints
// cover semantic content only (title and body), so a page round-tripped
// through the remote produces an identical fingerprint on both sides.
type PageDocument struct {
	RemoteID string `json:"id,omitempty"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// CanonicalContent returns the byte sequence fingerprints are computed over.
// Title and body are joined with a separator that cannot occur in either, so
// distinct (title, body) pairs never collide by concatenation.
func (d PageDocument) CanonicalContent() []byte {
	return []byte(d.Title + "\x00" + d.Body)
}

// Marshal renders the document in its on-disk form.
func (d PageDocument) Marshal() ([]byte, error) {
	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode page document: %w", err)
	}
	return payload, nil
}

// UnmarshalPageDocument parses the on-disk form of a page document.
func UnmarshalPageDocument(data []byte) (PageDocument, error) {
	var doc PageDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return PageDocument{}, fmt.Errorf("decode page document: %w", err)
	}
	return doc, nil
}
