package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Abenaitwe/vidcamp/internal/engine"
	"github.com/Abenaitwe/vidcamp/internal/media"
)

const outputName = "output.mp4"

// LocalBackend executes exports through the in-process engine. Executions
// are serialized: the engine exposes a single workspace namespace, and two
// concurrent jobs writing input0.mp4 there would corrupt each other.
type LocalBackend struct {
	eng     Engine
	fetcher media.Fetcher
	log     *slog.Logger

	mu sync.Mutex
}

func NewLocalBackend(eng Engine, fetcher media.Fetcher, log *slog.Logger) *LocalBackend {
	return &LocalBackend{
		eng:     eng,
		fetcher: fetcher,
		log:     log.With("component", "local_backend"),
	}
}

func (b *LocalBackend) Kind() BackendKind { return BackendLocal }

func (b *LocalBackend) Execute(ctx context.Context, job Job, onProgress ProgressFunc) ([]byte, error) {
	if err := b.eng.Load(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, wrapFailure(ErrCancelled, "engine load", err)
		}
		return nil, wrapFailure(ErrEngineLoad, "", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// The workspace is purged whatever happens below; a stale file from
	// this export must never be visible to a later one.
	defer b.purge()

	out, err := b.run(ctx, job, onProgress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapFailure(ErrCancelled, "local export", err)
		}
		return nil, wrapFailure(ErrExecution, "local export", err)
	}
	return out, nil
}

func (b *LocalBackend) run(ctx context.Context, job Job, onProgress ProgressFunc) ([]byte, error) {
	t := job.Timeline

	emit(onProgress, 10, "Loading video files...")
	inputs := make([]string, 0, len(t.Clips)+len(t.Images))
	for i, c := range t.Clips {
		data, err := b.fetcher.Fetch(ctx, c.Source)
		if err != nil {
			return nil, fmt.Errorf("fetch clip %d: %w", i, err)
		}
		name := fmt.Sprintf("input%d.mp4", i)
		if err := b.eng.WriteFile(name, data); err != nil {
			return nil, err
		}
		inputs = append(inputs, name)
	}

	emit(onProgress, 25, "Loading images...")
	for i, img := range t.Images {
		data, err := b.fetcher.Fetch(ctx, img.Source)
		if err != nil {
			return nil, fmt.Errorf("fetch image %d: %w", i, err)
		}
		name := fmt.Sprintf("image%d.png", i)
		if err := b.eng.WriteFile(name, data); err != nil {
			return nil, err
		}
		inputs = append(inputs, name)
	}

	emit(onProgress, 40, "Building filter chain...")
	emit(onProgress, 50, "Processing video...")

	err := b.eng.Render(ctx, engine.RenderJob{
		Inputs:        inputs,
		FilterComplex: job.Graph.String(),
		Output:        outputName,
		VideoMap:      "[" + job.Graph.Output + "]",
		AudioMap:      job.Graph.AudioMap,
		OnProgress: func(frac float64) {
			emit(onProgress, 50+int(frac*40), "Processing video...")
		},
	})
	if err != nil {
		return nil, err
	}

	emit(onProgress, 90, "Reading output...")
	out, err := b.eng.ReadFile(outputName)
	if err != nil {
		return nil, err
	}

	emit(onProgress, 100, "Complete!")
	return out, nil
}

// purge removes every workspace file. Failures are logged, never
// surfaced: cleanup must not mask the export outcome.
func (b *LocalBackend) purge() {
	names, err := b.eng.ListFiles()
	if err != nil {
		b.log.Warn("workspace listing failed during cleanup", "error", err)
		return
	}
	for _, name := range names {
		if err := b.eng.RemoveFile(name); err != nil {
			b.log.Warn("workspace file not removed", "name", name, "error", err)
		}
	}
}

func emit(onProgress ProgressFunc, percent int, message string) {
	if onProgress != nil {
		onProgress(percent, message)
	}
}
