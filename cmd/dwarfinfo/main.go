package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/common/version"
	"go.yaml.in/yaml/v3"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/dwarfreader/pkg/symbolizer"
)

var cfg struct {
	verbose      bool
	configFile   string
	bestEffort   bool
	skipBadUnits bool
	binary       string

	dies struct {
		unit     string
		maxDepth int
	}
	lines struct {
		unit string
	}
	lookup struct {
		addrs []string
	}
	function struct {
		name string
	}
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

// fileConfig is the layout of --config.file.
type fileConfig struct {
	Symbolizer symbolizer.Config `yaml:"symbolizer"`
}

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Inspect the DWARF debug information of ELF binaries.").UsageWriter(os.Stdout)
	app.Version(version.Print("dwarfinfo"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)
	app.Flag("config.file", "YAML file with symbolizer settings.").StringVar(&cfg.configFile)
	app.Flag("best-effort", "Drop attributes with unsupported forms instead of failing the unit.").BoolVar(&cfg.bestEffort)
	app.Flag("skip-bad-units", "Skip units that cannot be decoded.").BoolVar(&cfg.skipBadUnits)

	unitsCmd := app.Command("units", "List the units of a binary.")
	unitsCmd.Arg("binary", "ELF file").Required().ExistingFileVar(&cfg.binary)

	diesCmd := app.Command("dies", "Print the debugging information entry tree.")
	diesCmd.Arg("binary", "ELF file").Required().ExistingFileVar(&cfg.binary)
	diesCmd.Flag("unit", "Only print the unit at this .debug_info offset.").StringVar(&cfg.dies.unit)
	diesCmd.Flag("max-depth", "Do not descend below this depth. Negative means unlimited.").Default("-1").IntVar(&cfg.dies.maxDepth)

	linesCmd := app.Command("lines", "Print the line table of a unit.")
	linesCmd.Arg("binary", "ELF file").Required().ExistingFileVar(&cfg.binary)
	linesCmd.Flag("unit", "Offset of the unit in .debug_info.").Required().StringVar(&cfg.lines.unit)

	lookupCmd := app.Command("lookup", "Resolve addresses to functions, files and lines.")
	lookupCmd.Arg("binary", "ELF file").Required().ExistingFileVar(&cfg.binary)
	lookupCmd.Arg("addr", "Link-time addresses, hexadecimal with 0x prefix or decimal.").Required().StringsVar(&cfg.lookup.addrs)

	funcCmd := app.Command("func", "Print the address ranges of a function.")
	funcCmd.Arg("binary", "ELF file").Required().ExistingFileVar(&cfg.binary)
	funcCmd.Arg("name", "Function name.").Required().StringVar(&cfg.function.name)

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	t, err := newTool(ctx)
	if err != nil {
		os.Exit(checkError(err))
	}
	defer t.close()

	switch parsedCmd {
	case unitsCmd.FullCommand():
		err = t.units(ctx, cfg.binary)
	case diesCmd.FullCommand():
		err = t.dies(ctx, cfg.binary, cfg.dies.unit, cfg.dies.maxDepth)
	case linesCmd.FullCommand():
		err = t.lines(ctx, cfg.binary, cfg.lines.unit)
	case lookupCmd.FullCommand():
		err = t.lookup(ctx, cfg.binary, cfg.lookup.addrs)
	case funcCmd.FullCommand():
		err = t.function(ctx, cfg.binary, cfg.function.name)
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
	if err != nil {
		t.close()
		os.Exit(checkError(err))
	}
}

func newTool(ctx context.Context) (*tool, error) {
	c, err := loadConfig(cfg.configFile)
	if err != nil {
		return nil, err
	}
	if cfg.bestEffort {
		c.BestEffort = true
	}
	if cfg.skipBadUnits {
		c.SkipBadUnits = true
	}
	return newToolWithConfig(ctx, logger, c)
}

// loadConfig starts from the flag defaults and overlays the YAML file, if
// one is given.
func loadConfig(path string) (symbolizer.Config, error) {
	fc := fileConfig{Symbolizer: symbolizer.DefaultConfig()}
	// Unit level failures are reported by the commands themselves.
	fc.Symbolizer.SkipBadUnits = false
	if path == "" {
		return fc.Symbolizer, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return symbolizer.Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return symbolizer.Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := fc.Symbolizer.Validate(); err != nil {
		return symbolizer.Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return fc.Symbolizer, nil
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	var perr *parseError
	if errors.As(err, &perr) {
		fmt.Fprintf(os.Stderr, "invalid argument: %v\n", err)
		return 2
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
