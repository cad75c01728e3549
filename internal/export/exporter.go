package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Abenaitwe/vidcamp/internal/config"
	"github.com/Abenaitwe/vidcamp/internal/filtergraph"
	"github.com/Abenaitwe/vidcamp/internal/media"
	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

// Exporter coordinates one export end to end: validate, classify, pick a
// backend, compile, execute, clean up. It emits one merged progress
// stream regardless of the backend: roughly 0-10 covers classification,
// the backend's native scale fills 10-100, and the merged stream never
// regresses.
type Exporter struct {
	cfg     *config.Config
	fetcher media.Fetcher
	local   Backend
	remote  Backend
	log     *slog.Logger

	busy atomic.Bool
}

// New wires the orchestrator with both backend variants.
func New(cfg *config.Config, fetcher media.Fetcher, eng Engine, log *slog.Logger) *Exporter {
	return &Exporter{
		cfg:     cfg,
		fetcher: fetcher,
		local:   NewLocalBackend(eng, fetcher, log),
		remote:  NewRemoteBackend(cfg.RemoteURL, fetcher, log),
		log:     log.With("component", "exporter"),
	}
}

// NewWithBackends wires explicit backend implementations.
func NewWithBackends(cfg *config.Config, fetcher media.Fetcher, local, remote Backend, log *slog.Logger) *Exporter {
	return &Exporter{
		cfg:     cfg,
		fetcher: fetcher,
		local:   local,
		remote:  remote,
		log:     log.With("component", "exporter"),
	}
}

// Preload warms the local engine so the first export does not pay the
// load cost. Errors are reported but a later export retries the load.
func (e *Exporter) Preload(ctx context.Context) error {
	lb, ok := e.local.(*LocalBackend)
	if !ok {
		return nil
	}
	if err := lb.eng.Load(ctx); err != nil {
		return wrapFailure(ErrEngineLoad, "preload", err)
	}
	return nil
}

// Export runs one timeline to a terminal outcome. Only one export may be
// in flight per Exporter; a concurrent call fails with ErrBusy. The
// returned error, when non-nil, always wraps one of the failure kinds.
func (e *Exporter) Export(ctx context.Context, t *timeline.Timeline, onProgress ProgressFunc) (*Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	jobID := uuid.NewString()
	log := e.log.With("job_id", jobID)

	progress := monotonic(onProgress)
	progress(0, "Checking file size...")

	if err := t.Validate(); err != nil {
		return nil, wrapFailure(ErrValidation, "", err)
	}

	total, err := media.TotalSize(ctx, e.fetcher, t)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapFailure(ErrCancelled, "classify", err)
		}
		return nil, wrapFailure(ErrClassification, "", err)
	}

	backend := e.remote
	if total <= e.cfg.LocalSizeLimit {
		backend = e.local
	}
	sizeMB := float64(total) / (1024 * 1024)
	switch backend.Kind() {
	case BackendLocal:
		progress(5, fmt.Sprintf("Processing locally (%.2fMB)...", sizeMB))
	default:
		progress(5, fmt.Sprintf("File size (%.2fMB) exceeds local limit. Using cloud export...", sizeMB))
	}
	log.Info("backend selected", "backend", backend.Kind(), "total_bytes", total)

	progress(8, "Building filter chain...")
	graph := filtergraph.Compile(t)
	if err := filtergraph.Verify(graph); err != nil {
		return nil, wrapFailure(ErrCompile, "", err)
	}

	out, err := backend.Execute(ctx, Job{Timeline: t, Graph: graph}, func(p int, msg string) {
		// Remap the backend's native scale into the merged band above
		// classification.
		progress(10+p*90/100, msg)
	})
	if err != nil {
		log.Error("export failed", "backend", backend.Kind(), "error", err)
		return nil, err
	}

	progress(100, "Export complete!")
	log.Info("export finished", "backend", backend.Kind(), "output_bytes", len(out))

	return &Result{JobID: jobID, Backend: backend.Kind(), Output: out}, nil
}

// monotonic guards a progress stream: values are clamped to [0,100] and
// never decrease, so callers never observe a regression when stages or
// backends hand over.
func monotonic(onProgress ProgressFunc) ProgressFunc {
	last := -1
	return func(p int, msg string) {
		if p > 100 {
			p = 100
		}
		if p < last {
			p = last
		}
		last = p
		if onProgress != nil {
			onProgress(p, msg)
		}
	}
}
