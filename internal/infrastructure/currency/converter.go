// Package currency converts claim amounts into an organization's base currency.
package currency

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
)

// amountPlaces is the precision converted amounts are rounded to
const amountPlaces = 2

// StaticConverter converts with a fixed rate table keyed "FROM_TO". The inverse of a
// configured pair is derived when only one direction is present.
type StaticConverter struct {
	rates  map[string]decimal.Decimal
	logger *zap.Logger
}

// NewStaticConverter creates a converter from a "FROM_TO" -> rate table
func NewStaticConverter(rates map[string]decimal.Decimal, logger *zap.Logger) (*StaticConverter, error) {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for pair, rate := range rates {
		from, to, err := splitPair(pair)
		if err != nil {
			return nil, err
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("%w: rate for %s must be positive", entity.ErrValidation, pair)
		}
		normalized[key(from, to)] = rate
	}
	return &StaticConverter{rates: normalized, logger: logger}, nil
}

// ParseRates parses a "FROM_TO" -> decimal string table as it appears in configuration
func ParseRates(raw map[string]string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(raw))
	for pair, value := range raw {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", pair, err)
		}
		rates[pair] = rate
	}
	return rates, nil
}

// Convert returns amount in the target currency, rounded half up to cents, and the rate used
func (c *StaticConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	rate, err := c.rate(from, to)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	converted := amount.Mul(rate).Round(amountPlaces)
	c.logger.Debug("Converted amount",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("rate", rate.String()),
		zap.String("amount", amount.String()),
		zap.String("converted", converted.String()))
	return converted, rate, nil
}

func (c *StaticConverter) rate(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := c.rates[key(from, to)]; ok {
		return rate, nil
	}
	if inverse, ok := c.rates[key(to, from)]; ok {
		return decimal.NewFromInt(1).DivRound(inverse, 8), nil
	}
	return decimal.Zero, fmt.Errorf("%w: no exchange rate from %s to %s", entity.ErrValidation, from, to)
}

func splitPair(pair string) (string, string, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(pair)), "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: currency pair %q must look like USD_EUR", entity.ErrValidation, pair)
	}
	return parts[0], parts[1], nil
}

func key(from, to string) string {
	return from + "_" + to
}

var _ port.CurrencyConverter = (*StaticConverter)(nil)
