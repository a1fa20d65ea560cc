package model

import "strings"

// Metric selects the field a leaderboard is sorted by.
type Metric string

const (
	MetricStars         Metric = "stars"
	MetricCommits       Metric = "commits"
	MetricContributions Metric = "contributions"
	MetricStreak        Metric = "streak"
)

// Metrics lists every supported metric in display order.
var Metrics = []Metric{MetricStars, MetricCommits, MetricContributions, MetricStreak}

// ParseMetric maps a query parameter to a Metric. Empty or unknown values fall
// back to MetricStars, which is what the dashboard has always done.
func ParseMetric(s string) Metric {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if m.Valid() {
		return m
	}
	return MetricStars
}

// Valid reports whether m is one of the four supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricStars, MetricCommits, MetricContributions, MetricStreak:
		return true
	}
	return false
}
