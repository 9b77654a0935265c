package cardinality

import "fmt"

// Mode selects the tracker implementation.
type Mode int

const (
	// ModeBloom counts first sightings through a Bloom filter. It may
	// undercount by roughly the false positive rate.
	ModeBloom Mode = iota
	// ModeHLL estimates distinct series with a fixed-size HyperLogLog sketch.
	ModeHLL
	// ModeExact keeps every key. Intended for tests and small workloads.
	ModeExact
)

func (m Mode) String() string {
	switch m {
	case ModeBloom:
		return "bloom"
	case ModeHLL:
		return "hll"
	case ModeExact:
		return "exact"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. The empty string selects ModeBloom.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "bloom":
		return ModeBloom, nil
	case "hll", "hyperloglog":
		return ModeHLL, nil
	case "exact":
		return ModeExact, nil
	default:
		return ModeBloom, fmt.Errorf("cardinality: unknown mode %q", s)
	}
}

// Config sizes a tracker.
type Config struct {
	Mode Mode

	// ExpectedItems sizes the Bloom filter.
	ExpectedItems uint

	// FalsePositiveRate is the Bloom filter target, 0.01 = 1%.
	FalsePositiveRate float64
}

// DefaultConfig returns a Bloom tracker sized for 100K series.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeBloom,
		ExpectedItems:     100000,
		FalsePositiveRate: 0.01,
	}
}

// New creates the tracker selected by cfg.Mode.
func New(cfg Config) Tracker {
	switch cfg.Mode {
	case ModeHLL:
		return NewHLLTracker()
	case ModeExact:
		return NewExactTracker()
	default:
		if cfg.ExpectedItems == 0 {
			cfg.ExpectedItems = DefaultConfig().ExpectedItems
		}
		if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
			cfg.FalsePositiveRate = DefaultConfig().FalsePositiveRate
		}
		return NewBloomTracker(cfg)
	}
}
