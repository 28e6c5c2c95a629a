package services

import (
	"context"
	"strings"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// PageRequest carries pagination parameters shared by list operations.
type PageRequest struct {
	Page    int
	PerPage int
}

// Normalise applies the default and maximum page size.
func (p PageRequest) Normalise() (page, perPage int) {
	page = p.Page
	if page <= 0 {
		page = 1
	}
	perPage = p.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func (p PageRequest) offset() int {
	page, perPage := p.Normalise()
	return (page - 1) * perPage
}

func normaliseIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// likePattern builds a substring operand for LOWER(column) LIKE ? filters.
func likePattern(term string) string {
	return "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
