package sampledata

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"perftests-app/internal/domain"
	"perftests-app/internal/telemetry"
)

type Config struct {
	Count  int
	Name   string
	Branch string
	// Elapsed times are drawn from [MinTime, MaxTime).
	MinTime int64
	MaxTime int64
}

func DefaultConfig() Config {
	return Config{
		Count:   30,
		Name:    "ivy-default-case",
		Branch:  "master",
		MinTime: 90,
		MaxTime: 110,
	}
}

// Generator synthesizes demo measurements for builds 1..Count.
type Generator struct {
	cfg     Config
	log     *zap.Logger
	metrics *telemetry.Metrics

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(cfg Config, seed uint64, log *zap.Logger, metrics *telemetry.Metrics) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		rnd:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

func (g *Generator) Measurements() []domain.Measurement {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.Measurement, 0, max(g.cfg.Count, 0))
	for build := 1; build <= g.cfg.Count; build++ {
		elapsed := g.cfg.MinTime
		if span := g.cfg.MaxTime - g.cfg.MinTime; span > 0 {
			elapsed += g.rnd.Int64N(span)
		}
		out = append(out, domain.Measurement{
			Name:        g.cfg.Name,
			Branch:      g.cfg.Branch,
			BuildNumber: int64(build),
			ElapsedTime: elapsed,
		})
	}
	return out
}

type Result struct {
	Requested int
	Recorded  int
	Errors    []error
}

func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

func (r Result) String() string {
	return fmt.Sprintf("generated %d of %d test measurements", r.Recorded, r.Requested)
}

// Load records every generated measurement. Inserts are independent: a
// failure is logged and collected, and the remaining inserts still run.
// Cancelling ctx stops the loop.
func (g *Generator) Load(ctx context.Context, repo domain.MeasurementRepository) Result {
	batch := g.Measurements()
	res := Result{Requested: len(batch)}

	for _, m := range batch {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			break
		}
		err := repo.Record(ctx, m)
		g.metrics.ObserveSample(err)
		if err != nil {
			g.log.Warn("recording sample measurement",
				zap.String("name", m.Name),
				zap.Int64("build_number", m.BuildNumber),
				zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("build %d: %w", m.BuildNumber, err))
			continue
		}
		res.Recorded++
	}

	g.log.Info("sample measurements generated",
		zap.Int("recorded", res.Recorded),
		zap.Int("requested", res.Requested))
	return res
}
