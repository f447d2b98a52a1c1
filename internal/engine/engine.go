// Package engine runs the fixed pipeline: retrieve, calc, output. One pass
// per invocation; within retrieval the (station, model) units run on a
// bounded worker pool, everything else is sequential.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/jonboulle/clockwork"

	"wxvault/internal/config"
	"wxvault/internal/driver"
	"wxvault/internal/models"
	"wxvault/internal/store"
)

// ClimoSource provides climatology normals for a station. The real
// implementation is climo.Client; tests substitute fakes.
type ClimoSource interface {
	Normals(ctx context.Context, station models.Station) ([]models.DailyRecord, error)
}

type Options struct {
	// Strict escalates any retrieval or output failure to a run failure.
	// Lenient (the default) logs, skips the unit and completes the run.
	Strict bool
	// Backfill enables historical backfill for stations with no archived
	// data. BackfillStations narrows it to specific stations; empty means
	// all.
	Backfill         bool
	BackfillStations []string
	NoOutput         bool
	OutputOnly       bool
	NoCheckClimo     bool
}

type Engine struct {
	cfg   *config.Config
	store *store.Store
	climo ClimoSource
	clock clockwork.Clock
	opts  Options

	retrievers map[string]driver.Retriever // keyed by model name
	obs        driver.Retriever
	outputs    []namedOutputter

	mu      sync.Mutex
	summary Summary
}

type namedOutputter struct {
	name string
	out  driver.Outputter
}

// Summary reports what a run did and skipped; lenient mode always finishes
// with one of these.
type Summary struct {
	UnitsRun       int
	UnitsFailed    int
	RecordsWritten int
	RecordsSkipped int
	DaysComputed   int
	DaysSkipped    int
}

// New resolves every configured driver and output service up front. Any
// unknown name is a ConfigError here, before a single byte of I/O.
func New(cfg *config.Config, st *store.Store, reg *driver.Registry, climo ClimoSource, clock clockwork.Clock, opts Options) (*Engine, error) {
	if opts.NoOutput && opts.OutputOnly {
		return nil, &models.ConfigError{Reason: "--no-output and --output-only are mutually exclusive"}
	}

	e := &Engine{
		cfg:        cfg,
		store:      st,
		climo:      climo,
		clock:      clock,
		opts:       opts,
		retrievers: make(map[string]driver.Retriever),
	}

	for _, mc := range cfg.Models {
		ret, err := reg.Retriever(mc.Driver)
		if err != nil {
			return nil, err
		}
		e.retrievers[mc.Name] = ret
	}
	if cfg.ObsDriver != "" {
		ret, err := reg.Retriever(cfg.ObsDriver)
		if err != nil {
			return nil, err
		}
		e.obs = ret
	}
	for _, name := range cfg.OutputServices {
		out, err := reg.Outputter(name)
		if err != nil {
			return nil, err
		}
		e.outputs = append(e.outputs, namedOutputter{name: name, out: out})
	}

	return e, nil
}

// Run executes one pipeline pass. Retrieval completes before calc, calc
// before output. Returns the first failure in strict mode; in lenient mode
// failures are folded into the summary.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if !e.opts.OutputOnly {
		backfillFor, err := e.initStations()
		if err != nil {
			return e.snapshot(), err
		}

		if err := e.retrieveAll(ctx, backfillFor); err != nil {
			return e.snapshot(), err
		}

		if !e.opts.NoCheckClimo {
			if err := e.checkClimo(ctx); err != nil {
				if e.opts.Strict {
					return e.snapshot(), err
				}
				log.Printf("engine: climo check: %v", err)
			}
		}

		if err := e.runCalc(ctx); err != nil {
			return e.snapshot(), err
		}

		if err := e.writeStats(); err != nil {
			if e.opts.Strict {
				return e.snapshot(), err
			}
			log.Printf("engine: stats: %v", err)
		}
	}

	if !e.opts.NoOutput {
		if err := e.runOutput(ctx); err != nil {
			return e.snapshot(), err
		}
	}

	s := e.snapshot()
	log.Printf("engine: done: %d units run (%d failed), %d records written (%d skipped), %d days computed (%d skipped)",
		s.UnitsRun, s.UnitsFailed, s.RecordsWritten, s.RecordsSkipped, s.DaysComputed, s.DaysSkipped)
	return s, nil
}

// initStations seeds station rows, creates missing tables and rebuilds
// stale archives. Returns the stations needing the historical range.
func (e *Engine) initStations() (map[string]bool, error) {
	now := e.clock.Now().UTC()
	needsHistorical := make(map[string]bool)
	for _, st := range e.cfg.Stations {
		if err := e.store.UpsertStation(st); err != nil {
			return nil, fmt.Errorf("seed station %s: %w", st.ID, err)
		}
		fresh, err := e.store.InitStation(st, now)
		if err != nil {
			return nil, fmt.Errorf("init station %s: %w", st.ID, err)
		}
		if fresh && e.backfillAllowed(st.ID) {
			needsHistorical[st.ID] = true
		}
	}
	return needsHistorical, nil
}

func (e *Engine) backfillAllowed(stationID string) bool {
	if !e.opts.Backfill {
		return false
	}
	if len(e.opts.BackfillStations) == 0 {
		return true
	}
	for _, id := range e.opts.BackfillStations {
		if id == stationID {
			return true
		}
	}
	return false
}

// checkClimo fetches climatology for any station missing it. Failures only
// cost the anomaly baseline; they never abort a lenient run.
func (e *Engine) checkClimo(ctx context.Context) error {
	if e.climo == nil {
		return nil
	}
	for _, st := range e.cfg.Stations {
		has, err := e.store.HasClimo(st.ID)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		log.Printf("engine: fetching climatology for %s", st.ID)
		normals, err := e.climo.Normals(ctx, st)
		if err != nil {
			log.Printf("engine: climo for %s: %v", st.ID, err)
			if e.opts.Strict {
				return err
			}
			continue
		}
		if err := e.store.WriteDaily(st.ID, normals, e.clock.Now().UTC()); err != nil {
			return fmt.Errorf("write climo for %s: %w", st.ID, err)
		}
	}
	return nil
}

func (e *Engine) runOutput(ctx context.Context) error {
	modelNames := make([]string, 0, len(e.cfg.Models))
	for _, mc := range e.cfg.Models {
		modelNames = append(modelNames, mc.Name)
	}
	for _, no := range e.outputs {
		log.Printf("engine: running output service %s", no.name)
		if err := no.out.Output(ctx, e.store, e.cfg.Stations, modelNames); err != nil {
			if e.opts.Strict {
				return fmt.Errorf("output %s: %w", no.name, err)
			}
			log.Printf("engine: output %s: %v", no.name, err)
		}
	}
	return nil
}

func (e *Engine) snapshot() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

func (e *Engine) addRecords(written, skipped int) {
	e.mu.Lock()
	e.summary.RecordsWritten += written
	e.summary.RecordsSkipped += skipped
	e.mu.Unlock()
}

func (e *Engine) addUnit(failed bool) {
	e.mu.Lock()
	e.summary.UnitsRun++
	if failed {
		e.summary.UnitsFailed++
	}
	e.mu.Unlock()
}

func (e *Engine) addDay(skipped bool) {
	e.mu.Lock()
	if skipped {
		e.summary.DaysSkipped++
	} else {
		e.summary.DaysComputed++
	}
	e.mu.Unlock()
}
