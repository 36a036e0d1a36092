package rangehttp

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/segfetch/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// State is a step of a single fetch.
type State int

const (
	StatePlanning State = iota
	StateDispatching
	StateAwaiting
	StateAssembling
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateDispatching:
		return "dispatching"
	case StateAwaiting:
		return "awaiting"
	case StateAssembling:
		return "assembling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StateFunc observes transitions. completed/total are meaningful while awaiting.
type StateFunc func(state State, completed, total int)

// ProgressFunc receives the running byte count of the current fetch.
type ProgressFunc func(downloaded, total int64)

type Option func(*Orchestrator)

func WithFetcher(f ChunkFetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

func WithProber(p LengthProber) Option {
	return func(o *Orchestrator) { o.prober = p }
}

func WithStateHook(fn StateFunc) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// Orchestrator fans a fetch out over one range worker per chunk and
// reassembles the chunks in index order.
type Orchestrator struct {
	client     utils.HTTPDoer
	fetcher    ChunkFetcher
	prober     LengthProber
	onState    StateFunc
	onProgress ProgressFunc
	tracer     trace.Tracer
}

func NewOrchestrator(client utils.HTTPDoer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		tracer: noop.NewTracerProvider().Tracer("no-op tracer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.prober == nil {
		o.prober = NewHeadProber(client)
	}
	return o
}

// run tracks the state of one Execute call.
type run struct {
	o     *Orchestrator
	url   string
	state State
	total int
}

func (r *run) transition(to State, completed int) {
	if r.state.Terminal() {
		log.Warn().Str("op", "http/orchestrator").Msgf("ignoring transition %s -> %s", r.state, to)
		return
	}
	if r.state != to {
		log.Debug().Str("op", "http/orchestrator").Str("url", r.url).Msgf("%s -> %s", r.state, to)
	}
	r.state = to
	if r.o.onState != nil {
		r.o.onState(to, completed, r.total)
	}
}

func (r *run) fail(err error) (*utils.FetchOutcome, error) {
	r.transition(StateFailed, 0)
	return nil, err
}

// Execute runs one segmented fetch. It returns either the complete payload
// or a single error, never partial data.
func (o *Orchestrator) Execute(ctx context.Context, job utils.FetchJob) (*utils.FetchOutcome, error) {
	r := &run{o: o, url: job.URL, state: StatePlanning, total: job.Workers}
	ctx, span := o.tracer.Start(ctx, "rangehttp.execute", trace.WithAttributes(
		attribute.String("fetch.url", job.URL),
		attribute.Int("fetch.workers", job.Workers),
	))
	defer span.End()

	outcome, err := o.execute(ctx, r, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Str("op", "http/orchestrator").Str("url", job.URL).Err(err).Msg("fetch failed")
		return nil, err
	}
	return outcome, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, job utils.FetchJob) (*utils.FetchOutcome, error) {
	r.transition(StatePlanning, 0)
	if err := ValidateJob(job); err != nil {
		return r.fail(err)
	}
	info, err := o.prober.Probe(ctx, job.URL)
	if err != nil {
		return r.fail(err)
	}
	plans, err := PlanChunks(info.Length, job.Workers)
	if err != nil {
		return r.fail(err)
	}

	var downloaded atomic.Int64
	fetcher := o.fetcherFor(job, info.Length, &downloaded)

	r.transition(StateDispatching, 0)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return r.fail(fmt.Errorf("%w: %w", ErrDispatch, err))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(job.Workers)
	resultCh := make(chan utils.ChunkResult, len(plans))
	startTime := time.Now()
	for _, plan := range plans {
		started := group.TryGo(func() error {
			result := fetcher.Fetch(groupCtx, job.URL, plan)
			resultCh <- result
			return result.Err
		})
		if !started {
			return r.fail(fmt.Errorf("%w: chunk %d", ErrDispatch, plan.Index))
		}
	}
	log.Info().Str("op", "http/orchestrator").Str("url", job.URL).Int64("size", info.Length).
		Int("workers", job.Workers).Msg("dispatched range workers")

	r.transition(StateAwaiting, 0)
	results := make([]utils.ChunkResult, len(plans))
	var warnings []error
	for completed := 0; completed < len(plans); {
		select {
		case result := <-resultCh:
			completed++
			if result.Index < 0 || result.Index >= len(results) {
				cancel()
				return r.fail(fmt.Errorf("worker returned unknown chunk index %d", result.Index))
			}
			if result.Err != nil {
				cancel()
				return r.fail(result.Err)
			}
			if result.Warning != nil {
				if job.StrictLength {
					cancel()
					return r.fail(result.Warning)
				}
				warnings = append(warnings, result.Warning)
			}
			results[result.Index] = result
			r.transition(StateAwaiting, completed)
		case <-ctx.Done():
			return r.fail(&TransportError{Index: -1, Op: "awaiting workers", Err: ctx.Err()})
		}
	}
	elapsed := time.Since(startTime)
	if err := group.Wait(); err != nil {
		return r.fail(err)
	}

	r.transition(StateAssembling, len(plans))
	payload := make([]byte, 0, info.Length)
	for _, result := range results {
		payload = append(payload, result.Bytes...)
	}
	if int64(len(payload)) != info.Length {
		return r.fail(&TransportError{
			Index: -1,
			Op:    fmt.Sprintf("assembling %d of %d bytes", len(payload), info.Length),
			Err:   io.ErrUnexpectedEOF,
		})
	}
	for _, w := range warnings {
		log.Warn().Str("op", "http/orchestrator").Err(w).Msg("fetch completed with length warning")
	}
	r.transition(StateCompleted, len(plans))
	log.Info().Str("op", "http/orchestrator").Str("url", job.URL).
		Msgf("All workers completed. Elapsed time: %s", utils.FormatElapsed(elapsed))

	return &utils.FetchOutcome{
		Payload:       payload,
		Elapsed:       elapsed,
		ContentLength: info.Length,
		Chunks:        len(plans),
		FileName:      info.FileName,
		Warnings:      warnings,
	}, nil
}

// fetcherFor returns the injected fetcher or a RangeFetcher bound to job.
func (o *Orchestrator) fetcherFor(job utils.FetchJob, total int64, downloaded *atomic.Int64) ChunkFetcher {
	if o.fetcher != nil {
		return o.fetcher
	}
	f := NewRangeFetcher(o.client, job)
	f.tracer = o.tracer
	if o.onProgress != nil {
		f.onRead = func(n int) {
			o.onProgress(downloaded.Add(int64(n)), total)
		}
	}
	return f
}
