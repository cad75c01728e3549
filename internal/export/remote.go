package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Abenaitwe/vidcamp/internal/media"
	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

// RemoteBackend submits the timeline's structural metadata plus every raw
// payload to the remote worker, which recompiles the graph independently.
// Progress is coarse upload-phase milestones; the worker exposes no
// mid-job progress channel.
type RemoteBackend struct {
	url     string
	fetcher media.Fetcher
	http    *http.Client
	log     *slog.Logger
}

func NewRemoteBackend(url string, fetcher media.Fetcher, log *slog.Logger) *RemoteBackend {
	return &RemoteBackend{
		url:     url,
		fetcher: fetcher,
		http:    &http.Client{Timeout: 30 * time.Minute},
		log:     log.With("component", "remote_backend"),
	}
}

func (b *RemoteBackend) Kind() BackendKind { return BackendRemote }

// Metadata shapes for the worker protocol. Time fields travel as floats,
// pixel fields as integers, whatever the editor put in the timeline.
type remoteClip struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
}

type remoteImage struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Opacity   int     `json:"opacity"`
}

type remoteText struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Color       string  `json:"color"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	FontSize    int     `json:"fontSize"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	Opacity     int     `json:"opacity"`
}

type remoteMetadata struct {
	Videos []remoteClip  `json:"videos"`
	Images []remoteImage `json:"images"`
	Texts  []remoteText  `json:"texts"`
}

type remoteError struct {
	Message string `json:"message"`
}

func (b *RemoteBackend) Execute(ctx context.Context, job Job, onProgress ProgressFunc) ([]byte, error) {
	emit(onProgress, 10, "Preparing upload...")

	body, contentType, err := b.buildUpload(ctx, job.Timeline)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapFailure(ErrCancelled, "prepare upload", err)
		}
		return nil, wrapFailure(ErrTransport, "prepare upload", err)
	}

	emit(onProgress, 30, "Uploading to cloud...")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, body)
	if err != nil {
		return nil, wrapFailure(ErrTransport, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	emit(onProgress, 50, "Processing on cloud...")

	resp, err := b.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapFailure(ErrCancelled, "submit export", err)
		}
		return nil, wrapFailure(ErrTransport, "submit export", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, b.decodeFailure(resp)
	}

	emit(onProgress, 90, "Downloading...")
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapFailure(ErrCancelled, "download result", err)
		}
		return nil, wrapFailure(ErrTransport, "download result", err)
	}

	emit(onProgress, 100, "Export complete!")
	return out, nil
}

func (b *RemoteBackend) buildUpload(ctx context.Context, t *timeline.Timeline) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	meta := remoteMetadata{
		Videos: make([]remoteClip, 0, len(t.Clips)),
		Images: make([]remoteImage, 0, len(t.Images)),
		Texts:  make([]remoteText, 0, len(t.Texts)),
	}

	for i, c := range t.Clips {
		data, err := b.fetcher.Fetch(ctx, c.Source)
		if err != nil {
			return nil, "", errors.Wrapf(err, "fetch clip %d", i)
		}
		part, err := w.CreateFormFile("videos", c.ID+".mp4")
		if err != nil {
			return nil, "", errors.WithStack(err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", errors.WithStack(err)
		}
		meta.Videos = append(meta.Videos, remoteClip{
			ID:        c.ID,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
			Duration:  c.Duration,
			Width:     c.Width,
			Height:    c.Height,
			X:         c.X,
			Y:         c.Y,
		})
	}

	for i, img := range t.Images {
		data, err := b.fetcher.Fetch(ctx, img.Source)
		if err != nil {
			return nil, "", errors.Wrapf(err, "fetch image %d", i)
		}
		part, err := w.CreateFormFile("images", img.ID+".png")
		if err != nil {
			return nil, "", errors.WithStack(err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", errors.WithStack(err)
		}
		meta.Images = append(meta.Images, remoteImage{
			ID:        img.ID,
			StartTime: img.StartTime,
			EndTime:   img.EndTime,
			X:         int(img.X),
			Y:         int(img.Y),
			Width:     int(img.Width),
			Height:    int(img.Height),
			Opacity:   img.Opacity,
		})
	}

	for _, txt := range t.Texts {
		meta.Texts = append(meta.Texts, remoteText{
			ID:          txt.ID,
			Description: txt.Description,
			Color:       txt.Color,
			StartTime:   txt.StartTime,
			EndTime:     txt.EndTime,
			X:           int(txt.X),
			Y:           int(txt.Y),
			FontSize:    txt.FontSize,
			Width:       txt.Width,
			Height:      txt.Height,
			Opacity:     txt.Opacity,
		})
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", errors.WithStack(err)
	}
	if err := w.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, "", errors.WithStack(err)
	}
	if err := w.WriteField("canvas_width", strconv.Itoa(t.CanvasWidth)); err != nil {
		return nil, "", errors.WithStack(err)
	}
	if err := w.WriteField("canvas_height", strconv.Itoa(t.CanvasHeight)); err != nil {
		return nil, "", errors.WithStack(err)
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.WithStack(err)
	}

	return buf, w.FormDataContentType(), nil
}

// decodeFailure maps a non-OK worker response. A structured error body is
// a processing failure carrying the worker's diagnostic; anything else is
// reported by status alone.
func (b *RemoteBackend) decodeFailure(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var werr remoteError
	if err := json.Unmarshal(body, &werr); err == nil && werr.Message != "" {
		return wrapFailure(ErrExecution, "remote worker", fmt.Errorf("%s", werr.Message))
	}
	return wrapFailure(ErrExecution, "remote worker", fmt.Errorf("status %d", resp.StatusCode))
}
