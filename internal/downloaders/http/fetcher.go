package rangehttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/segfetch/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ChunkFetcher retrieves the bytes of a single planned range.
type ChunkFetcher interface {
	Fetch(ctx context.Context, url string, plan utils.ChunkPlan) utils.ChunkResult
}

// RangeFetcher performs one ranged GET per plan. It never retries.
type RangeFetcher struct {
	client     utils.HTTPDoer
	bufferSize int
	readDelay  time.Duration
	timeout    time.Duration
	onRead     func(n int)
	tracer     trace.Tracer
}

func NewRangeFetcher(client utils.HTTPDoer, job utils.FetchJob) *RangeFetcher {
	return &RangeFetcher{
		client:     client,
		bufferSize: job.BufferSize,
		readDelay:  job.ReadDelay,
		timeout:    job.ChunkTimeout,
		tracer:     noop.NewTracerProvider().Tracer("no-op tracer"),
	}
}

func (f *RangeFetcher) Fetch(ctx context.Context, url string, plan utils.ChunkPlan) utils.ChunkResult {
	result := utils.ChunkResult{Index: plan.Index}
	if plan.Length == 0 {
		result.Bytes = []byte{}
		return result
	}

	ctx, span := f.tracer.Start(ctx, "rangehttp.fetch", trace.WithAttributes(
		attribute.Int("chunk.index", plan.Index),
		attribute.Int64("chunk.offset", plan.Offset),
		attribute.Int64("chunk.length", plan.Length),
	))
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if err := f.fetchRange(ctx, url, plan, &result); err != nil {
		result.Bytes = nil
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) {
			log.Debug().Str("op", "http/fetcher").Int("worker", plan.Index).Msg("range fetch abandoned")
		} else {
			log.Error().Str("op", "http/fetcher").Int("worker", plan.Index).Err(err).Msg("range fetch failed")
		}
		return result
	}
	log.Debug().Str("op", "http/fetcher").Msgf("worker[%d] was assigned [%d] bytes. Read [%d] over [%d] iterations.",
		plan.Index, plan.Length, len(result.Bytes), result.Reads)
	return result
}

func (f *RangeFetcher) fetchRange(ctx context.Context, url string, plan utils.ChunkPlan, result *utils.ChunkResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &TransportError{Index: plan.Index, Op: "creating request", Err: err}
	}
	rangeHeader := fmt.Sprintf("bytes=%d-%d", plan.Offset, plan.End())
	req.Header.Set("Range", rangeHeader)
	log.Debug().Str("op", "http/fetcher").Msgf("worker[%d] %s", plan.Index, rangeHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return &TransportError{Index: plan.Index, Op: "executing request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return &NonPartialResponseError{Index: plan.Index, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength != plan.Length {
		result.Warning = &LengthMismatchWarning{Index: plan.Index, Expected: plan.Length, Reported: resp.ContentLength}
		log.Warn().Str("op", "http/fetcher").Err(result.Warning).Msg("partial response length disagrees with plan")
	}

	accumulated := make([]byte, 0, plan.Length)
	buffer := make([]byte, f.bufferSize)
	for int64(len(accumulated)) < plan.Length {
		want := min(int64(len(buffer)), plan.Length-int64(len(accumulated)))
		bytesRead, readErr := resp.Body.Read(buffer[:want])
		if bytesRead > 0 {
			result.Reads++
			accumulated = append(accumulated, buffer[:bytesRead]...)
			if f.onRead != nil {
				f.onRead(bytesRead)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return &TransportError{Index: plan.Index, Op: "reading body", Err: readErr}
		}
		if int64(len(accumulated)) >= plan.Length {
			break
		}
		if err := sleepContext(ctx, f.readDelay); err != nil {
			return &TransportError{Index: plan.Index, Op: "throttling reads", Err: err}
		}
	}
	result.Bytes = accumulated
	return nil
}

// sleepContext pauses for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
