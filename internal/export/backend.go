package export

import (
	"context"

	"github.com/Abenaitwe/vidcamp/internal/engine"
	"github.com/Abenaitwe/vidcamp/internal/filtergraph"
	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

// BackendKind identifies which execution capability handled an export.
type BackendKind string

const (
	BackendLocal  BackendKind = "local"
	BackendRemote BackendKind = "remote"
)

// ProgressFunc receives advisory progress updates: a percentage in [0,100]
// and a human-readable status. Updates are never authoritative for
// success or failure.
type ProgressFunc func(percent int, message string)

// Job is one compiled export handed to a backend.
type Job struct {
	Timeline *timeline.Timeline
	Graph    filtergraph.Graph
}

// Result is the terminal outcome of a successful export.
type Result struct {
	JobID   string
	Backend BackendKind
	Output  []byte
}

// Backend turns a compiled graph plus raw payloads into an output
// payload. Execute resolves exactly once; progress runs on the backend's
// native 0-100 scale and is remapped by the orchestrator.
type Backend interface {
	Kind() BackendKind
	Execute(ctx context.Context, job Job, onProgress ProgressFunc) ([]byte, error)
}

// Engine is the in-process media capability consumed by the local
// backend. internal/engine provides the ffmpeg implementation.
type Engine interface {
	Load(ctx context.Context) error
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	ListFiles() ([]string, error)
	RemoveFile(name string) error
	Render(ctx context.Context, job engine.RenderJob) error
}
