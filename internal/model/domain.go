package model

import "time"

// Domain is a web property submitted for visibility analysis. Domains are
// immutable once created; re-analysis produces a new DomainVersion rather
// than overwriting anything.
type Domain struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// DomainVersion is a single analysis snapshot of a domain. Keywords, phrases,
// query results, and pipeline progress all hang off a version so historical
// runs stay comparable.
type DomainVersion struct {
	ID        string    `json:"id"`
	DomainID  string    `json:"domainId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Keyword is a search topic discovered for a domain version. Read-only after
// the discovery stage.
type Keyword struct {
	ID              string      `json:"id"`
	DomainVersionID string      `json:"domainVersionId"`
	Term            string      `json:"term"`
	Market          *MarketData `json:"market,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Phrase is a natural-language query derived from a keyword, sent to AI
// models to test whether the domain shows up in their answers.
type Phrase struct {
	ID              string    `json:"id"`
	KeywordID       string    `json:"keywordId"`
	DomainVersionID string    `json:"domainVersionId"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MarketData is externally supplied keyword market intelligence. All fields
// are optional; aggregation proceeds without them.
type MarketData struct {
	SearchVolume int     `json:"searchVolume"`
	Difficulty   float64 `json:"difficulty"`
	CPC          float64 `json:"cpc"`
}
