package model

import "time"

// Insights is the narrative layer of a dashboard artifact.
type Insights struct {
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// IndustryAnalysis describes where the domain sits in its industry.
type IndustryAnalysis struct {
	Industry       string   `json:"industry"`
	MarketPosition string   `json:"marketPosition"`
	Trends         []string `json:"trends"`
}

// DashboardAnalysis is the cached computed artifact for a domain. Exactly one
// current row exists per domain; recomputes overwrite it. Stale marks a row
// that is being served while a recompute is known to be pending.
type DashboardAnalysis struct {
	DomainID        string           `json:"domainId"`
	DomainVersionID string           `json:"domainVersionId"`
	Metrics         DashboardMetrics `json:"metrics"`
	Insights        Insights         `json:"insights"`
	IndustryAnalysis IndustryAnalysis `json:"industryAnalysis"`
	Stale           bool             `json:"stale"`
	ComputedAt      time.Time        `json:"computedAt"`
}

// Competitor is one entry in a competitor analysis artifact.
type Competitor struct {
	Name       string   `json:"name"`
	Domain     string   `json:"domain"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Positioning string  `json:"positioning,omitempty"`
}

// CompetitorAnalysis is the cached competitive-landscape artifact for a
// domain. CompetitorList records the literal input list the computation was
// keyed on; editing the list replaces the whole row.
type CompetitorAnalysis struct {
	DomainID                 string       `json:"domainId"`
	Competitors              []Competitor `json:"competitors"`
	MarketInsights           []string     `json:"marketInsights"`
	StrategicRecommendations []string     `json:"strategicRecommendations"`
	CompetitiveAnalysis      string       `json:"competitiveAnalysis"`
	CompetitorList           []string     `json:"competitorList"`
	ComputedAt               time.Time    `json:"computedAt"`
}

// SuggestedCompetitor is an independently cached recommendation. The
// suggestion list is regenerated only on explicit request and is never
// invalidated by pipeline progress.
type SuggestedCompetitor struct {
	ID        string    `json:"id"`
	DomainID  string    `json:"domainId"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}
