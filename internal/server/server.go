// Package server exposes the export core over HTTP using the same
// multipart protocol the remote backend speaks, so one deployment can act
// as the remote worker for another.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Abenaitwe/vidcamp/internal/export"
	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

// maxUploadBytes bounds one submission; the remote path exists precisely
// for jobs too large to hold comfortably in a browser, not unbounded ones.
const maxUploadBytes = 2 << 30

// Renderer is the slice of the exporter the server needs.
type Renderer interface {
	Export(ctx context.Context, t *timeline.Timeline, onProgress export.ProgressFunc) (*export.Result, error)
}

// Server handles the worker protocol.
type Server struct {
	renderer Renderer
	log      *slog.Logger
}

func New(renderer Renderer, log *slog.Logger) *Server {
	return &Server{renderer: renderer, log: log.With("component", "server")}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/process", s.handleProcess)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Incoming metadata mirrors the upload protocol: one entry per file part,
// paired by order.
type submissionMetadata struct {
	Videos []struct {
		ID        string  `json:"id"`
		StartTime float64 `json:"startTime"`
		EndTime   float64 `json:"endTime"`
		Duration  float64 `json:"duration"`
		Width     float64 `json:"width"`
		Height    float64 `json:"height"`
		X         float64 `json:"x"`
		Y         float64 `json:"y"`
	} `json:"videos"`
	Images []struct {
		ID        string  `json:"id"`
		StartTime float64 `json:"startTime"`
		EndTime   float64 `json:"endTime"`
		X         float64 `json:"x"`
		Y         float64 `json:"y"`
		Width     float64 `json:"width"`
		Height    float64 `json:"height"`
		Opacity   int     `json:"opacity"`
	} `json:"images"`
	Texts []struct {
		ID          string  `json:"id"`
		Description string  `json:"description"`
		Color       string  `json:"color"`
		StartTime   float64 `json:"startTime"`
		EndTime     float64 `json:"endTime"`
		X           float64 `json:"x"`
		Y           float64 `json:"y"`
		FontSize    int     `json:"fontSize"`
		Width       float64 `json:"width"`
		Height      float64 `json:"height"`
		Opacity     int     `json:"opacity"`
	} `json:"texts"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	tmpDir, err := os.MkdirTemp("", "vidcamp_upload_")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	t, err := s.buildTimeline(r, tmpDir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.renderer.Export(r.Context(), t, func(p int, msg string) {
		s.log.Debug("export progress", "percent", p, "message", msg)
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Output)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Output)
}

func (s *Server) buildTimeline(r *http.Request, tmpDir string) (*timeline.Timeline, error) {
	var meta submissionMetadata
	metaField := r.FormValue("metadata")
	if metaField == "" {
		return nil, fmt.Errorf("metadata field is required")
	}
	if err := json.Unmarshal([]byte(metaField), &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}

	canvasWidth, err := strconv.Atoi(r.FormValue("canvas_width"))
	if err != nil {
		return nil, fmt.Errorf("canvas_width: %w", err)
	}
	canvasHeight, err := strconv.Atoi(r.FormValue("canvas_height"))
	if err != nil {
		return nil, fmt.Errorf("canvas_height: %w", err)
	}

	videoParts := r.MultipartForm.File["videos"]
	imageParts := r.MultipartForm.File["images"]
	if len(videoParts) != len(meta.Videos) {
		return nil, fmt.Errorf("metadata lists %d videos but %d were uploaded", len(meta.Videos), len(videoParts))
	}
	if len(imageParts) != len(meta.Images) {
		return nil, fmt.Errorf("metadata lists %d images but %d were uploaded", len(meta.Images), len(imageParts))
	}

	t := &timeline.Timeline{CanvasWidth: canvasWidth, CanvasHeight: canvasHeight}

	for i, v := range meta.Videos {
		path, err := spoolPart(videoParts[i], tmpDir, fmt.Sprintf("video%d.mp4", i))
		if err != nil {
			return nil, err
		}
		t.Clips = append(t.Clips, timeline.Clip{
			ID:        v.ID,
			Source:    path,
			StartTime: v.StartTime,
			EndTime:   v.EndTime,
			Duration:  v.Duration,
			Width:     v.Width,
			Height:    v.Height,
			X:         v.X,
			Y:         v.Y,
		})
	}
	for i, img := range meta.Images {
		path, err := spoolPart(imageParts[i], tmpDir, fmt.Sprintf("image%d.png", i))
		if err != nil {
			return nil, err
		}
		t.Images = append(t.Images, timeline.ImageOverlay{
			ID:        img.ID,
			Source:    path,
			StartTime: img.StartTime,
			EndTime:   img.EndTime,
			X:         img.X,
			Y:         img.Y,
			Width:     img.Width,
			Height:    img.Height,
			Opacity:   img.Opacity,
		})
	}
	for _, txt := range meta.Texts {
		t.Texts = append(t.Texts, timeline.TextOverlay{
			ID:          txt.ID,
			Description: txt.Description,
			Color:       txt.Color,
			StartTime:   txt.StartTime,
			EndTime:     txt.EndTime,
			X:           txt.X,
			Y:           txt.Y,
			FontSize:    txt.FontSize,
			Width:       txt.Width,
			Height:      txt.Height,
			Opacity:     txt.Opacity,
		})
	}

	t.FillDefaults()
	return t, nil
}

func spoolPart(fh *multipart.FileHeader, dir, name string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	defer dst.Close()

	if _, err := dst.ReadFrom(src); err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return path, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, export.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, export.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, export.ErrTransport), errors.Is(err, export.ErrClassification):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error("request failed", "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
