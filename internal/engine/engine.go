// Package engine runs compiled filter graphs through a local ffmpeg
// process. It owns a private workspace directory: callers materialize
// inputs into it under names of their choosing, render against those
// names, read the output back and purge everything afterwards.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// RenderJob describes one ffmpeg invocation against workspace files.
// Inputs are workspace-relative names in stream-index order; the filter
// graph's numeric input labels refer to positions in this slice.
type RenderJob struct {
	Inputs        []string
	FilterComplex string
	Output        string
	VideoMap      string
	AudioMap      string
	// OnProgress receives the render position as a fraction of the base
	// clip duration, in [0,1]. May be nil.
	OnProgress func(fraction float64)
}

type loadAttempt struct {
	done chan struct{}
	err  error
}

// FFmpeg is the local engine. The binary is located once per process
// lifetime; concurrent first callers share a single load attempt and a
// failed attempt is retried by the next call rather than cached.
type FFmpeg struct {
	bin string
	log *slog.Logger

	// locate is swappable for tests.
	locate func(string) (string, error)

	mu      sync.Mutex
	loaded  bool
	path    string
	dir     string
	attempt *loadAttempt
}

func New(bin string, log *slog.Logger) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{
		bin:    bin,
		log:    log.With("component", "engine"),
		locate: exec.LookPath,
	}
}

// Load locates the ffmpeg binary and prepares the workspace. Idempotent
// and safe to race: only one attempt runs at a time, later callers await
// its outcome.
func (e *FFmpeg) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.loaded {
		e.mu.Unlock()
		return nil
	}
	if e.attempt != nil {
		a := e.attempt
		e.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a := &loadAttempt{done: make(chan struct{})}
	e.attempt = a
	e.mu.Unlock()

	path, dir, err := e.doLoad()

	e.mu.Lock()
	if err == nil {
		e.loaded = true
		e.path = path
		e.dir = dir
	}
	a.err = err
	e.attempt = nil
	e.mu.Unlock()
	close(a.done)
	return err
}

func (e *FFmpeg) doLoad() (path, dir string, err error) {
	path, err = e.locate(e.bin)
	if err != nil {
		return "", "", errors.Wrapf(err, "locate %s", e.bin)
	}
	dir, err = os.MkdirTemp("", "vidcamp_engine_")
	if err != nil {
		return "", "", errors.Wrap(err, "create workspace")
	}
	e.log.Info("engine loaded", "ffmpeg", path, "workspace", dir)
	return path, dir, nil
}

// WriteFile materializes a payload in the workspace.
func (e *FFmpeg) WriteFile(name string, data []byte) error {
	p, err := e.workspacePath(name)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(p, data, 0o644), "write %s", name)
}

// ReadFile reads a workspace file back.
func (e *FFmpeg) ReadFile(name string) ([]byte, error) {
	p, err := e.workspacePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	return data, errors.Wrapf(err, "read %s", name)
}

// ListFiles returns the names of every file in the workspace.
func (e *FFmpeg) ListFiles() ([]string, error) {
	e.mu.Lock()
	dir := e.dir
	e.mu.Unlock()
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "list workspace")
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			names = append(names, ent.Name())
		}
	}
	return names, nil
}

// RemoveFile deletes a workspace file.
func (e *FFmpeg) RemoveFile(name string) error {
	p, err := e.workspacePath(name)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.Remove(p), "remove %s", name)
}

func (e *FFmpeg) workspacePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid workspace name %q", name)
	}
	e.mu.Lock()
	dir := e.dir
	loaded := e.loaded
	e.mu.Unlock()
	if !loaded {
		return "", fmt.Errorf("engine not loaded")
	}
	return filepath.Join(dir, name), nil
}

// Render runs the filter graph against previously written inputs and
// leaves the result under the job's output name. Cancelling the context
// kills the ffmpeg process.
func (e *FFmpeg) Render(ctx context.Context, job RenderJob) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("engine not loaded")
	}
	bin, dir := e.path, e.dir
	e.mu.Unlock()

	if len(job.Inputs) == 0 {
		return fmt.Errorf("render job has no inputs")
	}

	streams := make([]*ffmpeg.Stream, len(job.Inputs))
	for i, name := range job.Inputs {
		streams[i] = ffmpeg.Input(filepath.Join(dir, name))
	}

	out := ffmpeg.Output(streams, filepath.Join(dir, job.Output), ffmpeg.KwArgs{
		"filter_complex": job.FilterComplex,
		"map":            []string{job.VideoMap, job.AudioMap},
		"c:v":            "libx264",
		"preset":         "fast",
		"crf":            23,
		"c:a":            "aac",
		"b:a":            "128k",
		"movflags":       "+faststart",
	})

	// Compile through ffmpeg-go for argument construction, then run the
	// command ourselves for context cancellation and progress parsing.
	compiled := out.OverWriteOutput().GlobalArgs("-progress", "pipe:1", "-nostats").Compile()

	duration := e.probeDuration(filepath.Join(dir, job.Inputs[0]))

	cmd := exec.CommandContext(ctx, bin, compiled.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "attach progress pipe")
	}

	e.log.Debug("rendering", "args", strings.Join(compiled.Args[1:], " "))

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "start ffmpeg")
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if job.OnProgress == nil || duration <= 0 {
			continue
		}
		if v, ok := strings.CutPrefix(line, "out_time_us="); ok {
			us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				continue
			}
			frac := float64(us) / 1e6 / duration
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			job.OnProgress(frac)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %v: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

// probeDuration reports the duration of a workspace input in seconds, or
// zero when it cannot be determined. Render progress is advisory, so a
// failed probe degrades to coarse progress instead of failing the job.
func (e *FFmpeg) probeDuration(path string) float64 {
	probe, err := ffmpeg.Probe(path)
	if err != nil {
		e.log.Debug("probe failed", "path", path, "error", err)
		return 0
	}
	return durationFromProbe(probe)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
