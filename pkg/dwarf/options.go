package dwarf

import (
	"encoding/binary"

	"github.com/go-kit/log"
)

const defaultAbbrevCacheSize = 256

// Option configures an Index.
type Option func(*options)

type options struct {
	bestEffort      bool
	logger          log.Logger
	abbrevCacheSize int
	order           binary.ByteOrder
}

func defaultOptions() options {
	return options{
		logger:          log.NewNopLogger(),
		abbrevCacheSize: defaultAbbrevCacheSize,
	}
}

// WithBestEffort makes attributes of unsupported forms get dropped from
// their entry instead of failing the whole unit.
func WithBestEffort() Option {
	return func(o *options) {
		o.bestEffort = true
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAbbrevCacheSize bounds the number of decoded abbreviation tables kept
// for reuse. Zero disables the cache.
func WithAbbrevCacheSize(n int) Option {
	return func(o *options) {
		o.abbrevCacheSize = n
	}
}

// WithByteOrder overrides the byte order reported by the sections.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *options) {
		o.order = order
	}
}

// IterOption configures Index.ForEachUnit.
type IterOption func(*iterOptions)

type iterOptions struct {
	skipBad bool
	onBad   func(*UnitError)
}

// SkipBadUnits keeps iterating past units that fail to decode. The skipped
// failures are returned together once iteration completes.
func SkipBadUnits() IterOption {
	return func(o *iterOptions) {
		o.skipBad = true
	}
}

// OnBadUnit registers a callback invoked for every unit skipped under
// SkipBadUnits.
func OnBadUnit(fn func(*UnitError)) IterOption {
	return func(o *iterOptions) {
		o.onBad = fn
	}
}
