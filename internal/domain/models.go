package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NamedResourceRef points at a remote detail document. The URL carries the
// numeric identifier as its trailing path segment.
type NamedResourceRef struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
}

// ID extracts the numeric identifier from the reference URL.
func (r NamedResourceRef) ID() (int, error) {
	return IDFromURL(r.URL)
}

// IDFromURL parses the trailing path segment of u as an integer id.
func IDFromURL(u string) (int, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(u), "/")
	if trimmed == "" {
		return 0, fmt.Errorf("empty resource url")
	}
	idx := strings.LastIndex(trimmed, "/")
	seg := trimmed[idx+1:]
	id, err := strconv.Atoi(seg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("resource url %q has no numeric id", u)
	}
	return id, nil
}

// ResourceList is one page of a list endpoint.
type ResourceList struct {
	Count    int                `json:"count"`
	Next     *string            `json:"next"`
	Previous *string            `json:"previous"`
	Results  []NamedResourceRef `json:"results" validate:"dive"`
}

// Mode selects the transport strategy used for upstream calls.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModePremium  Mode = "premium"
)

// ParseMode normalises s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStandard:
		return ModeStandard, nil
	case ModePremium:
		return ModePremium, nil
	default:
		return "", fmt.Errorf("unknown seed mode %q (expected standard or premium)", s)
	}
}

const (
	DefaultPremiumBatchSize    = 10
	DefaultStandardBatchSize   = 1
	DefaultProgressLogInterval = 25
	DefaultCategoryTimeout     = 30 * time.Minute
	DefaultCategoryMaxRetries  = 3
)

// CategoryConfig describes one unit of seeding work.
type CategoryConfig struct {
	Endpoint            string
	Category            string
	Mode                Mode
	BatchSize           int
	ProgressLogInterval int
	Timeout             time.Duration
	MaxRetries          int
}

// NewCategoryConfig builds a config for endpoint with mode-dependent defaults.
// The category name defaults to the endpoint.
func NewCategoryConfig(endpoint string, mode Mode) CategoryConfig {
	batch := DefaultStandardBatchSize
	if mode == ModePremium {
		batch = DefaultPremiumBatchSize
	}
	return CategoryConfig{
		Endpoint:            endpoint,
		Category:            endpoint,
		Mode:                mode,
		BatchSize:           batch,
		ProgressLogInterval: DefaultProgressLogInterval,
		Timeout:             DefaultCategoryTimeout,
		MaxRetries:          DefaultCategoryMaxRetries,
	}
}

// Named returns a copy of c seeded under a different category name.
func (c CategoryConfig) Named(category string) CategoryConfig {
	c.Category = category
	return c
}

// Validate reports configuration that the engine cannot run with.
func (c CategoryConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("category %q: endpoint is required", c.Category)
	}
	if strings.TrimSpace(c.Category) == "" {
		return fmt.Errorf("endpoint %q: category name is required", c.Endpoint)
	}
	if c.Mode != ModeStandard && c.Mode != ModePremium {
		return fmt.Errorf("category %q: invalid mode %q", c.Category, c.Mode)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("category %q: batch size must be positive", c.Category)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("category %q: timeout must be positive", c.Category)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("category %q: max retries must not be negative", c.Category)
	}
	return nil
}
