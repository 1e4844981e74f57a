// Package fees computes service and network fees for custody operations.
// All arithmetic is fixed-point over minor units; a quote is an exact
// integer snapshot that is frozen once attached to a pending operation.
package fees

import (
	"fmt"
	"sync"

	"github.com/NairaLink/chat_layer/internal/app/domain/money"
	"github.com/NairaLink/chat_layer/internal/app/domain/operation"
	"github.com/NairaLink/chat_layer/pkg/logger"
)

// DefaultServiceFeeBps is the service fee in basis points (1%).
const DefaultServiceFeeBps = 100

// FXScale is the fixed-point denominator for the native→quote exchange rate.
const FXScale = 1_000_000

// Default per-kind gas unit costs.
var defaultGasUnits = map[operation.Kind]int64{
	operation.KindTransfer:   21_000,
	operation.KindDeposit:    50_000,
	operation.KindWithdraw:   60_000,
	operation.KindCardCreate: 90_000,
}

// Service quotes fees from cached network prices. Quoting never performs
// I/O: the cache is maintained by the Refresher and falls back to the
// last-known values when the oracle is unavailable.
type Service struct {
	serviceFeeBps int64
	gasUnits      map[operation.Kind]int64
	log           *logger.Logger

	mu       sync.RWMutex
	gasPrice int64 // native minor units per gas unit
	fxRate   int64 // quote minor units per native minor unit, scaled by FXScale
}

// New constructs a fee service with seed prices. The seeds act as the
// last-known fallback until the first successful refresh.
func New(seedGasPrice, seedFXRate int64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("fees")
	}
	units := make(map[operation.Kind]int64, len(defaultGasUnits))
	for k, v := range defaultGasUnits {
		units[k] = v
	}
	return &Service{
		serviceFeeBps: DefaultServiceFeeBps,
		gasUnits:      units,
		log:           log,
		gasPrice:      seedGasPrice,
		fxRate:        seedFXRate,
	}
}

// SetServiceFeeBps overrides the service fee percentage.
func (s *Service) SetServiceFeeBps(bps int64) {
	s.mu.Lock()
	s.serviceFeeBps = bps
	s.mu.Unlock()
}

// UpdatePrices installs freshly fetched network prices. Non-positive values
// are ignored so a bad oracle read cannot poison the cache.
func (s *Service) UpdatePrices(gasPrice, fxRate int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gasPrice > 0 {
		s.gasPrice = gasPrice
	}
	if fxRate > 0 {
		s.fxRate = fxRate
	}
}

// CurrentPrices returns the cached gas price and exchange rate.
func (s *Service) CurrentPrices() (gasPrice, fxRate int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gasPrice, s.fxRate
}

// Quote computes the fee breakdown for an operation of the given kind.
// Two quotes against an unchanged cache are identical.
func (s *Service) Quote(amount money.Amount, kind operation.Kind) (operation.FeeQuote, error) {
	if !amount.IsPositive() {
		return operation.FeeQuote{}, fmt.Errorf("amount must be positive")
	}
	units, ok := s.gasUnits[kind]
	if !ok {
		return operation.FeeQuote{}, fmt.Errorf("unknown operation kind %q", kind)
	}

	s.mu.RLock()
	gasPrice := s.gasPrice
	fxRate := s.fxRate
	bps := s.serviceFeeBps
	s.mu.RUnlock()

	serviceFee := amount.BasisPoints(bps)
	networkFeeNative := units * gasPrice
	networkFeeQuote := money.Amount(networkFeeNative * fxRate / FXScale)

	return operation.FeeQuote{
		Amount:           amount,
		ServiceFee:       serviceFee,
		NetworkFeeNative: networkFeeNative,
		NetworkFeeQuote:  networkFeeQuote,
		TotalCost:        amount.Add(serviceFee).Add(networkFeeQuote),
		NetToRecipient:   amount,
	}, nil
}
