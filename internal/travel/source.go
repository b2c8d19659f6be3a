package travel

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Source tags where search results came from
type Source string

const (
	SourceAPI       Source = "api"
	SourceGenerated Source = "generated"
	SourceCatalog   Source = "catalog"
	SourceCache     Source = "cache"
)

// ErrNoSource is returned when neither the primary nor the fallback source is set
var ErrNoSource = errors.New("no data source configured")

// withFallback calls primary and, when it is missing or fails, fallback. The
// primary error is only logged; the caller sees the fallback outcome.
func withFallback[T any](ctx context.Context, logger *zap.Logger, what string,
	primary func(context.Context) (T, error), primarySource Source,
	fallback func(context.Context) (T, error), fallbackSource Source,
) (T, Source, error) {
	var zero T

	if primary != nil {
		v, err := primary(ctx)
		if err == nil {
			return v, primarySource, nil
		}
		logger.Warn("Primary source failed, using fallback",
			zap.String("search", what),
			zap.Error(err))
		if ctx.Err() != nil {
			return zero, "", ctx.Err()
		}
	}

	if fallback == nil {
		return zero, "", ErrNoSource
	}
	v, err := fallback(ctx)
	if err != nil {
		return zero, "", err
	}
	return v, fallbackSource, nil
}
