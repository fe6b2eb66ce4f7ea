package provider

import (
	"context"
	"errors"

	"alphascreen/pkg/model"
)

// Provider is a remote source of per-symbol market data.
// Implementations are blocking and safe for concurrent use.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Fundamentals fetches the latest ratio snapshot for a symbol
	Fundamentals(ctx context.Context, symbol string) (*model.Fundamentals, error)

	// PriceHistory fetches OHLCV bars for period (e.g. "5y") at interval (e.g. "1d")
	PriceHistory(ctx context.Context, symbol, period, interval string) (model.PriceSeries, error)
}

// ErrNoData is returned when the provider answered but had nothing for the symbol
var ErrNoData = errors.New("no data available")

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient provider failure
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
