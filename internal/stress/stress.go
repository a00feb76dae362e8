// Package stress drives a slot pool from many goroutines with a random
// allocate/free mix and checks that no slot is ever handed out twice.
package stress

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/slotpool/pkg/config"
	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/observability"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// Payload is the value type stressed. The init hook stamps it so a holder
// can tell whether anyone else constructed into its slot.
type Payload struct {
	Slot   pool.SlotID
	Worker uint32
	Token  uint64
}

var (
	// ErrDoubleHandOut means one slot was live for two holders at once.
	ErrDoubleHandOut = errors.Define(errors.ErrorTypeCorruption, "slot handed out twice")
	// ErrInvariant means Validate or a pool operation reported a broken structure.
	ErrInvariant = errors.Define(errors.ErrorTypeCorruption, "pool invariant violated")
)

// latencySampleEvery controls how often allocate latency is recorded.
const latencySampleEvery = 16

type held struct {
	v     *Payload
	slot  pool.SlotID
	token uint64
	// owned is false when another holder already claimed slot
	owned bool
}

type run struct {
	p      *pool.Pool[Payload]
	cfg    config.StressConfig
	logger *zap.Logger
	tracer *observability.PoolTracer

	owners  []atomic.Uint32 // worker+1 holding each slot, 0 when free
	maxUsed atomic.Uint32
	latency *metrics.LatencyTracker
	allocOb prometheus.Observer
	freeOb  prometheus.Observer

	mu     sync.Mutex
	report *Report
}

type workerCounts struct {
	ops, allocs, frees, exhausted, validations uint64
}

// Run stresses p until cfg.Duration elapses or ctx is done. p must be
// initialized and should not be shared with other users during the run.
//
// A nil log uses the global logger tagged with the run id carried by ctx
// under logger.RunIDKey.
//
// The returned report is always non-nil once the run started. The error is
// non-nil when a double hand-out or a broken invariant was observed.
func Run(ctx context.Context, p *pool.Pool[Payload], cfg config.StressConfig, log *zap.Logger) (*Report, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.WithContext(ctx)
	}
	capacity := p.Size()
	if capacity == 0 {
		return nil, errors.Wrap(pool.ErrNotInitialized, errors.ErrorTypeState, "stress").
			WithDetail("pool", p.Name())
	}

	r := newRun(p, cfg, log)

	monitor, err := NewResourceMonitor()
	if err != nil {
		r.logger.Debug("resource monitor unavailable", zap.Error(err))
	}
	throughput := metrics.NewThroughputTracker(p.Name())

	ctx, span := r.tracer.StartSpan(ctx, "stress")
	defer span.End()
	span.SetAttribute("workers", cfg.Workers)
	span.SetAttribute("capacity", capacity)
	span.SetAttribute("seed", cfg.Seed)

	r.logger.Info("stress run started",
		zap.Uint32("capacity", capacity),
		zap.Int("workers", cfg.Workers),
		zap.Duration("duration", cfg.Duration),
		zap.Int64("seed", cfg.Seed))

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.Workers; i++ {
		worker := uint32(i)
		g.Go(func() error {
			return r.worker(gctx, worker)
		})
	}
	runErr := g.Wait()

	rep := r.report
	rep.Elapsed = time.Since(start)
	throughput.Increment(int64(rep.Operations))
	rep.OpsPerSec = throughput.GetAndReset()
	rep.AllocateP50 = r.latency.GetPercentile(50)
	rep.AllocateP99 = r.latency.GetPercentile(99)
	rep.MaxUsed = r.maxUsed.Load()

	if err := r.tracer.Trace(ctx, "validate", func(context.Context) error { return p.Validate() }); err != nil {
		r.invariant(err)
		if runErr == nil {
			runErr = errors.Wrap(ErrInvariant, errors.ErrorTypeCorruption, "final validation").
				WithDetail("cause", err.Error())
		}
	}
	rep.Stats = p.Stats()
	if monitor != nil {
		rep.Resources = monitor.Usage()
	}

	span.SetAttribute("operations", rep.Operations)
	span.SetAttribute("double_hand_outs", rep.DoubleHandOuts)
	span.RecordError(runErr)

	fields := []zap.Field{
		zap.Uint64("operations", rep.Operations),
		zap.Uint64("allocations", rep.Allocations),
		zap.Uint64("exhausted", rep.Exhausted),
		zap.Uint32("max_used", rep.MaxUsed),
		zap.Duration("elapsed", rep.Elapsed),
		zap.Float64("ops_per_sec", rep.OpsPerSec),
	}
	if runErr != nil {
		r.logger.Error("stress run failed", append(fields, zap.Error(runErr))...)
	} else {
		r.logger.Info("stress run completed", fields...)
	}
	return rep, runErr
}

func newRun(p *pool.Pool[Payload], cfg config.StressConfig, log *zap.Logger) *run {
	capacity := p.Size()
	return &run{
		p:       p,
		cfg:     cfg,
		logger:  log.With(zap.String("pool", p.Name())),
		tracer:  observability.NewPoolTracer(p.Name()),
		owners:  make([]atomic.Uint32, capacity),
		latency: metrics.NewLatencyTracker(4096),
		allocOb: metrics.OperationLatency.WithLabelValues("allocate", p.Name()),
		freeOb:  metrics.OperationLatency.WithLabelValues("deallocate", p.Name()),
		report: &Report{
			Pool:     p.Name(),
			Capacity: capacity,
			Workers:  cfg.Workers,
			Seed:     cfg.Seed,
		},
	}
}

func (r *run) worker(ctx context.Context, id uint32) (err error) {
	ctx, span := r.tracer.StartSpan(ctx, "worker")
	span.SetAttribute("worker", int(id))

	var c workerCounts
	rng := rand.New(rand.NewSource(r.cfg.Seed + int64(id)))
	holds := make([]held, 0, r.cfg.HoldMax)

	defer func() {
		// Drain whatever is still held, even after a failure.
		span.AddEvent("drain", attribute.Int("held", len(holds)))
		for _, h := range holds {
			if ferr := r.free(id, h); ferr != nil && err == nil {
				err = ferr
			}
			c.frees++
		}
		r.merge(c)
		span.SetAttribute("operations", c.ops)
		span.RecordError(err)
		span.End()
	}()

	for seq := uint64(0); ctx.Err() == nil; seq++ {
		c.ops++

		if len(holds) == 0 || (len(holds) < r.cfg.HoldMax && rng.Float64() < r.cfg.AllocRatio) {
			h, ok, aerr := r.allocate(id, uint64(id)<<40|seq, seq)
			if ok {
				holds = append(holds, h)
			}
			if aerr != nil {
				return aerr
			}
			if !ok {
				c.exhausted++
			} else {
				c.allocs++
			}
		} else {
			j := rng.Intn(len(holds))
			h := holds[j]
			holds[j] = holds[len(holds)-1]
			holds = holds[:len(holds)-1]
			c.frees++
			if ferr := r.free(id, h); ferr != nil {
				return ferr
			}
		}

		if r.cfg.ValidateEvery > 0 && c.ops%uint64(r.cfg.ValidateEvery) == 0 {
			c.validations++
			timer := metrics.NewTimer("validate")
			verr := r.p.Validate()
			timer.ObserveDuration(r.p.Name())
			if verr != nil {
				r.invariant(verr)
				return errors.Wrap(ErrInvariant, errors.ErrorTypeCorruption, "validate").
					WithDetail("worker", id).
					WithDetail("cause", verr.Error())
			}
		}
	}
	return nil
}

func (r *run) allocate(worker uint32, token, seq uint64) (held, bool, error) {
	start := time.Now()
	v, ok := r.p.Allocate(func(slot pool.SlotID, v *Payload) {
		v.Slot = slot
		v.Worker = worker
		v.Token = token
	})
	d := time.Since(start)
	r.allocOb.Observe(float64(d.Nanoseconds()))
	if seq%latencySampleEvery == 0 {
		r.latency.Record(d)
	}
	if !ok {
		return held{}, false, nil
	}

	h := held{v: v, slot: v.Slot, token: token, owned: true}
	if !r.owners[h.slot].CompareAndSwap(0, worker+1) {
		h.owned = false
		return h, true, r.doubleHandOut(worker, h.slot, r.owners[h.slot].Load()-1)
	}
	if id, found := r.p.SlotOf(v); !found || id != h.slot {
		err := errors.New(errors.ErrorTypeCorruption, "allocated value does not map back to its slot").
			WithDetail("slot", h.slot)
		r.invariant(err)
		return h, true, errors.Wrap(ErrInvariant, errors.ErrorTypeCorruption, "allocate").WithDetail("cause", err.Error())
	}

	for used := r.p.UsedCount(); ; {
		cur := r.maxUsed.Load()
		if used <= cur || r.maxUsed.CompareAndSwap(cur, used) {
			break
		}
	}
	return h, true, nil
}

func (r *run) free(worker uint32, h held) error {
	if h.v.Worker != worker || h.v.Token != h.token || h.v.Slot != h.slot {
		return r.doubleHandOut(worker, h.slot, h.v.Worker)
	}
	if h.owned && !r.owners[h.slot].CompareAndSwap(worker+1, 0) {
		return r.doubleHandOut(worker, h.slot, r.owners[h.slot].Load()-1)
	}

	start := time.Now()
	err := r.p.Deallocate(h.v)
	r.freeOb.Observe(float64(time.Since(start).Nanoseconds()))
	if err != nil {
		r.invariant(err)
		return errors.Wrap(ErrInvariant, errors.ErrorTypeCorruption, "deallocate").
			WithDetail("slot", h.slot).
			WithDetail("cause", err.Error())
	}
	return nil
}

func (r *run) doubleHandOut(worker uint32, slot pool.SlotID, other uint32) error {
	r.mu.Lock()
	r.report.DoubleHandOuts++
	r.mu.Unlock()
	r.logger.Error("slot handed out twice",
		zap.Uint32("slot", uint32(slot)),
		zap.Uint32("worker", worker),
		zap.Uint32("other_worker", other))
	return errors.Wrap(ErrDoubleHandOut, errors.ErrorTypeCorruption, "stress").
		WithDetail("slot", slot).
		WithDetail("worker", worker)
}

func (r *run) invariant(err error) {
	r.mu.Lock()
	r.report.InvariantErrors = append(r.report.InvariantErrors, err.Error())
	r.mu.Unlock()
	r.logger.Error("pool invariant violated", zap.Error(err))
}

func (r *run) merge(c workerCounts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Operations += c.ops
	r.report.Allocations += c.allocs
	r.report.Frees += c.frees
	r.report.Exhausted += c.exhausted
	r.report.Validations += c.validations
}

func checkConfig(cfg config.StressConfig) error {
	invalid := func(field string, value interface{}) error {
		return errors.New(errors.ErrorTypeValidation, "invalid stress setting").
			WithDetail("field", field).
			WithDetail("value", value)
	}
	switch {
	case cfg.Workers <= 0:
		return invalid("workers", cfg.Workers)
	case cfg.Duration <= 0:
		return invalid("duration", cfg.Duration)
	case cfg.AllocRatio <= 0 || cfg.AllocRatio > 1:
		return invalid("alloc_ratio", cfg.AllocRatio)
	case cfg.HoldMax <= 0:
		return invalid("hold_max", cfg.HoldMax)
	case cfg.ValidateEvery < 0:
		return invalid("validate_every", cfg.ValidateEvery)
	}
	return nil
}
