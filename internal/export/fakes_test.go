package export

import (
	"context"
	"fmt"
	"sync"

	"github.com/Abenaitwe/vidcamp/internal/engine"
)

// fakeEngine is an in-memory Engine for backend tests.
type fakeEngine struct {
	mu        sync.Mutex
	files     map[string][]byte
	loads     int
	loadErr   error
	renderErr error
	lastJob   engine.RenderJob
	rendered  []byte
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{files: map[string][]byte{}, rendered: []byte("rendered-mp4")}
}

func (f *fakeEngine) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.loadErr
}

func (f *fakeEngine) WriteFile(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
	return nil
}

func (f *fakeEngine) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("no such file %s", name)
	}
	return data, nil
}

func (f *fakeEngine) ListFiles() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeEngine) RemoveFile(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, name)
	return nil
}

func (f *fakeEngine) Render(ctx context.Context, job engine.RenderJob) error {
	f.mu.Lock()
	f.lastJob = job
	err := f.renderErr
	out := f.rendered
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if job.OnProgress != nil {
		job.OnProgress(0.5)
		job.OnProgress(1)
	}
	return f.WriteFile(job.Output, out)
}

func (f *fakeEngine) fileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// fakeFetcher serves payloads and sizes from memory.
type fakeFetcher struct {
	payloads map[string][]byte
	sizes    map[string]int64
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	data, ok := f.payloads[ref]
	if !ok {
		return nil, fmt.Errorf("unknown ref %s", ref)
	}
	return data, nil
}

func (f *fakeFetcher) Size(ctx context.Context, ref string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if n, ok := f.sizes[ref]; ok {
		return n, nil
	}
	if data, ok := f.payloads[ref]; ok {
		return int64(len(data)), nil
	}
	return 0, fmt.Errorf("unknown ref %s", ref)
}

// fakeBackend scripts an execution outcome for orchestrator tests.
type fakeBackend struct {
	kind    BackendKind
	out     []byte
	err     error
	started chan struct{}
	release chan struct{}
}

func (b *fakeBackend) Kind() BackendKind { return b.kind }

func (b *fakeBackend) Execute(ctx context.Context, job Job, onProgress ProgressFunc) ([]byte, error) {
	if b.started != nil {
		close(b.started)
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, wrapFailure(ErrCancelled, "fake backend", ctx.Err())
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	emit(onProgress, 10, "working")
	emit(onProgress, 60, "working")
	emit(onProgress, 100, "done")
	return b.out, nil
}
