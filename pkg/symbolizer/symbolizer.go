// Package symbolizer resolves profile addresses to functions, files and
// lines using the DWARF debug information of the profiled binaries.
package symbolizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/pprof/profile"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/dwarfreader/pkg/elfimage"
)

type Symbolizer struct {
	logger   log.Logger
	metrics  *metrics
	cfg      Config
	binaries *lru.Cache[string, *Binary]
}

func New(logger log.Logger, cfg Config, reg prometheus.Registerer) (*Symbolizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Symbolizer{
		logger:  logger,
		metrics: newMetrics(reg),
		cfg:     cfg,
	}
	var err error
	// Evicted binaries are not closed: callers may still be resolving
	// against them. They hold nothing but memory.
	s.binaries, err = lru.NewWithEvict(cfg.MaxCachedBinaries, func(string, *Binary) {
		s.metrics.cacheOperations.WithLabelValues("binary", "evict", statusSuccess).Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("create binary cache: %w", err)
	}
	return s, nil
}

// Open loads the ELF file at path, reusing a previously opened Binary with
// identical content.
func (s *Symbolizer) Open(ctx context.Context, path string) (*Binary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.metrics.binariesOpened.WithLabelValues(statusError).Inc()
		return nil, err
	}
	key := "xxh:" + strconv.FormatUint(xxhash.Sum64(data), 16)
	if b, ok := s.cached(key); ok {
		return b, nil
	}
	img, err := elfimage.FromBytes(data)
	if err != nil {
		s.metrics.binariesOpened.WithLabelValues(statusError).Inc()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s.metrics.binarySize.Observe(float64(len(data)))
	return s.add(key, img, filepath.Base(path))
}

// OpenImage wraps an already opened image. Images with a build ID are
// cached under it.
func (s *Symbolizer) OpenImage(img *elfimage.Image, name string) (*Binary, error) {
	id, _ := img.BuildID()
	if id.Empty() {
		b, err := NewBinary(s.logger, s.cfg, img, name)
		s.observeOpen(err)
		return b, err
	}
	key := "buildid:" + id.ID
	if b, ok := s.cached(key); ok {
		return b, nil
	}
	return s.add(key, img, name)
}

func (s *Symbolizer) cached(key string) (*Binary, bool) {
	b, ok := s.binaries.Get(key)
	status := "miss"
	if ok {
		status = "hit"
	}
	s.metrics.cacheOperations.WithLabelValues("binary", "get", status).Inc()
	return b, ok
}

func (s *Symbolizer) add(key string, img *elfimage.Image, name string) (*Binary, error) {
	b, err := NewBinary(s.logger, s.cfg, img, name)
	s.observeOpen(err)
	if err != nil {
		return nil, err
	}
	s.binaries.Add(key, b)
	return b, nil
}

func (s *Symbolizer) observeOpen(err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	s.metrics.binariesOpened.WithLabelValues(status).Inc()
}

// Close drops every cached binary. Binaries already handed out stay usable.
func (s *Symbolizer) Close() {
	s.binaries.Purge()
}

type mappingJob struct {
	mapping   *profile.Mapping
	binary    *Binary
	locations []*profile.Location
}

type symbolizedLocation struct {
	loc    *profile.Location
	frames []Frame
}

// SymbolizeProfile fills in the lines of every location that has none,
// using whichever of bins matches the location's mapping by build ID or
// file name. Mappings without a matching binary are left untouched.
func (s *Symbolizer) SymbolizeProfile(ctx context.Context, p *profile.Profile, bins ...*Binary) error {
	start := time.Now()
	status := statusSuccess
	defer func() {
		s.metrics.profileSymbolization.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	jobs := s.planJobs(p, bins)
	if len(jobs) == 0 {
		return nil
	}
	results, err := s.symbolizeMappingsConcurrently(ctx, jobs)
	if err != nil {
		status = statusError
		return fmt.Errorf("symbolizing mappings: %w", err)
	}
	updateAllSymbolsInProfile(p, results)
	for _, job := range jobs {
		job.mapping.HasFunctions = true
		job.mapping.HasFilenames = true
		job.mapping.HasLineNumbers = true
		job.mapping.HasInlineFrames = true
	}
	return nil
}

func (s *Symbolizer) planJobs(p *profile.Profile, bins []*Binary) []mappingJob {
	var jobs []mappingJob
	for _, m := range p.Mapping {
		if m.HasFunctions {
			continue
		}
		b, ok := lo.Find(bins, func(b *Binary) bool {
			if m.BuildID != "" && !b.BuildID.Empty() {
				return m.BuildID == b.BuildID.ID
			}
			return filepath.Base(m.File) == b.Name
		})
		if !ok {
			level.Debug(s.logger).Log("msg", "no binary for mapping", "file", m.File, "build_id", m.BuildID)
			continue
		}
		locs := lo.Filter(p.Location, func(loc *profile.Location, _ int) bool {
			return loc.Mapping == m && len(loc.Line) == 0
		})
		if len(locs) == 0 {
			continue
		}
		jobs = append(jobs, mappingJob{mapping: m, binary: b, locations: locs})
	}
	return jobs
}

func (s *Symbolizer) symbolizeMappingsConcurrently(ctx context.Context, jobs []mappingJob) ([]symbolizedLocation, error) {
	results := make([][]symbolizedLocation, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.symbolizeMapping(job)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Flatten(results), nil
}

func (s *Symbolizer) symbolizeMapping(job mappingJob) []symbolizedLocation {
	start := time.Now()
	status := statusSuccess
	defer func() {
		s.metrics.debugSymbolResolution.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	if err := job.binary.Err(); err != nil {
		status = statusError
		s.metrics.debugSymbolResolutionErrors.WithLabelValues("debug_info").Inc()
		level.Warn(s.logger).Log("msg", "debug info unusable, falling back to symbols", "binary", job.binary.Name, "err", err)
	}

	out := make([]symbolizedLocation, 0, len(job.locations))
	for _, loc := range job.locations {
		addr, err := job.binary.Layout.Normalize(loc.Address, job.mapping)
		if err != nil {
			s.metrics.debugSymbolResolutionErrors.WithLabelValues("address_mapping").Inc()
			level.Debug(s.logger).Log("msg", "failed to normalize address", "addr", fmt.Sprintf("0x%x", loc.Address), "err", err)
			addr = loc.Address
		}
		frames, source := job.binary.resolve(nil, addr)
		s.metrics.resolvedAddresses.WithLabelValues(source).Inc()
		out = append(out, symbolizedLocation{loc: loc, frames: frames})
	}
	return out
}

type funcKey struct {
	name, file string
}

func updateAllSymbolsInProfile(p *profile.Profile, locs []symbolizedLocation) {
	funcs := make(map[funcKey]*profile.Function, len(p.Function))
	var maxID uint64
	for _, fn := range p.Function {
		funcs[funcKey{fn.Name, fn.Filename}] = fn
		maxID = max(maxID, fn.ID)
	}

	for _, item := range locs {
		item.loc.Line = make([]profile.Line, len(item.frames))
		for j, frame := range item.frames {
			key := funcKey{frame.FunctionName, frame.FilePath}
			fn, ok := funcs[key]
			if !ok {
				maxID++
				fn = &profile.Function{
					ID:         maxID,
					Name:       frame.FunctionName,
					SystemName: frame.FunctionName,
					Filename:   frame.FilePath,
					StartLine:  int64(frame.LineNumber),
				}
				p.Function = append(p.Function, fn)
				funcs[key] = fn
			} else if frame.LineNumber > 0 && (fn.StartLine == 0 || int64(frame.LineNumber) < fn.StartLine) {
				fn.StartLine = int64(frame.LineNumber)
			}
			item.loc.Line[j] = profile.Line{
				Function: fn,
				Line:     int64(frame.LineNumber),
			}
		}
	}
}
