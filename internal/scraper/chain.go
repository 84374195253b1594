package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maltedev/listing-builder/internal/dom"
)

// Strategy is one way of reading a field off a page.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context, page dom.Page) (T, error)
}

// Chain tries strategies in declared order and stops at the first one that
// yields a non-empty value. Later strategies are never evaluated once an
// earlier one succeeds.
type Chain[T any] struct {
	Field      string
	Strategies []Strategy[T]
	Empty      func(T) bool
}

// TextChain builds a chain whose empty value is blank text.
func TextChain(field string, strategies ...Strategy[string]) Chain[string] {
	return Chain[string]{
		Field:      field,
		Strategies: strategies,
		Empty:      func(s string) bool { return strings.TrimSpace(s) == "" },
	}
}

// Resolve returns the first non-empty value and the name of the strategy
// that produced it. When every strategy misses it returns the zero value and
// an empty name.
func (c Chain[T]) Resolve(ctx context.Context, page dom.Page, logger *slog.Logger) (T, string) {
	var zero T
	for _, s := range c.Strategies {
		if ctx.Err() != nil {
			return zero, ""
		}

		v, err := s.Run(ctx, page)
		if err != nil {
			logger.Debug("strategy missed", "field", c.Field, "strategy", s.Name, "error", err)
			continue
		}
		if c.Empty != nil && c.Empty(v) {
			logger.Debug("strategy empty", "field", c.Field, "strategy", s.Name)
			continue
		}

		logger.Debug("strategy matched", "field", c.Field, "strategy", s.Name)
		return v, s.Name
	}

	logger.Warn("no strategy matched", "field", c.Field)
	return zero, ""
}
