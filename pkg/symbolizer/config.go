package symbolizer

import (
	"flag"
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

var demangleModes = map[string][]demangle.Option{
	"none":       nil,
	"simplified": {demangle.NoParams, demangle.NoEnclosingParams, demangle.NoTemplateParams},
	"templates":  {demangle.NoParams, demangle.NoEnclosingParams},
	"full":       {demangle.NoClones},
}

type Config struct {
	BestEffort        bool   `yaml:"best_effort"`
	SkipBadUnits      bool   `yaml:"skip_bad_units"`
	Demangle          string `yaml:"demangle"`
	SymtabFallback    bool   `yaml:"symtab_fallback"`
	MaxCachedBinaries int    `yaml:"max_cached_binaries" category:"advanced"`
	MaxConcurrency    int    `yaml:"max_concurrency" category:"advanced"`
	AbbrevCacheSize   int    `yaml:"abbrev_cache_size" category:"advanced"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&cfg.BestEffort, "symbolizer.best-effort", false, "Drop attributes with unsupported forms instead of failing the whole unit.")
	f.BoolVar(&cfg.SkipBadUnits, "symbolizer.skip-bad-units", true, "Skip units that cannot be decoded instead of failing the binary.")
	f.StringVar(&cfg.Demangle, "symbolizer.demangle", "full", "C++ and Rust linkage name demangling: none, simplified, templates or full.")
	f.BoolVar(&cfg.SymtabFallback, "symbolizer.symtab-fallback", true, "Resolve addresses without debug information through the ELF symbol table.")
	f.IntVar(&cfg.MaxCachedBinaries, "symbolizer.max-cached-binaries", 64, "Maximum number of opened binaries kept in memory.")
	f.IntVar(&cfg.MaxConcurrency, "symbolizer.max-concurrency", 8, "Maximum number of mappings symbolized concurrently.")
	f.IntVar(&cfg.AbbrevCacheSize, "symbolizer.abbrev-cache-size", 256, "Number of decoded abbreviation tables cached per binary. 0 disables the cache.")
}

func (cfg *Config) Validate() error {
	if cfg.MaxCachedBinaries < 1 {
		return fmt.Errorf("invalid max-cached-binaries value, must be positive")
	}
	if cfg.MaxConcurrency < 1 {
		return fmt.Errorf("invalid max-concurrency value, must be positive")
	}
	if _, ok := demangleModes[cfg.Demangle]; !ok {
		return fmt.Errorf("invalid demangle value %q, must be one of none, simplified, templates or full", cfg.Demangle)
	}
	if cfg.AbbrevCacheSize < 0 {
		return fmt.Errorf("invalid abbrev-cache-size value, must not be negative")
	}
	return nil
}

// DefaultConfig returns the configuration with every flag at its default.
func DefaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}
