package timeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Defaults applied to text overlays when the editor leaves fields unset.
// Width and height only matter for converting the center position to a
// top-left drawtext placement.
const (
	DefaultFontSize   = 24
	DefaultTextColor  = "#FFFFFF"
	DefaultTextWidth  = 100
	DefaultTextHeight = 50
	DefaultOpacity    = 100
)

// Clip is one video track entry. The clip at index 0 is the base track and
// is always scaled to the canvas; later clips are overlays with their own
// geometry and activation window.
type Clip struct {
	ID        string  `json:"id"`
	Source    string  `json:"src"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration,omitempty"`
}

// ImageOverlay is a still image composited over the video tracks.
type ImageOverlay struct {
	ID        string  `json:"id"`
	Source    string  `json:"src"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Opacity   int     `json:"opacity,omitempty"`
}

// TextOverlay is a caption drawn over the composited frame. Description is
// arbitrary user text and must be escaped before it reaches the filter
// grammar.
type TextOverlay struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	FontSize    int     `json:"fontSize,omitempty"`
	Color       string  `json:"color,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	Opacity     int     `json:"opacity,omitempty"`
}

// Timeline is the immutable per-export snapshot handed over by the editor.
// Clip order is significant: index 0 supplies the base visual track and,
// optionally, the audio track.
type Timeline struct {
	CanvasWidth  int            `json:"canvasWidth"`
	CanvasHeight int            `json:"canvasHeight"`
	Clips        []Clip         `json:"videos"`
	Images       []ImageOverlay `json:"images"`
	Texts        []TextOverlay  `json:"texts"`
}

// Validate rejects timelines the compiler must never see. The policy for
// inverted activation windows is reject, not clamp: an entity with
// startTime >= endTime is an authoring error the editor should surface, and
// silently clamping would hide it in the rendered output.
func (t *Timeline) Validate() error {
	if t.CanvasWidth <= 0 || t.CanvasHeight <= 0 {
		return fmt.Errorf("canvas dimensions must be positive, got %dx%d", t.CanvasWidth, t.CanvasHeight)
	}
	if len(t.Clips) == 0 {
		return fmt.Errorf("timeline has no clips; the base track is required")
	}
	for i, c := range t.Clips {
		if err := checkWindow(c.StartTime, c.EndTime); err != nil {
			return fmt.Errorf("clip %d: %v", i, err)
		}
		if c.Source == "" {
			return fmt.Errorf("clip %d: missing source", i)
		}
	}
	for i, img := range t.Images {
		if err := checkWindow(img.StartTime, img.EndTime); err != nil {
			return fmt.Errorf("image %d: %v", i, err)
		}
		if img.Source == "" {
			return fmt.Errorf("image %d: missing source", i)
		}
	}
	for i, txt := range t.Texts {
		if err := checkWindow(txt.StartTime, txt.EndTime); err != nil {
			return fmt.Errorf("text %d: %v", i, err)
		}
	}
	return nil
}

func checkWindow(start, end float64) error {
	if start < 0 {
		return fmt.Errorf("startTime %g is negative", start)
	}
	if start >= end {
		return fmt.Errorf("activation window start %g is not before end %g", start, end)
	}
	return nil
}

// FillDefaults assigns ids to entities that lack them and applies the text
// overlay fallbacks. It mutates the snapshot before it is sealed for export.
func (t *Timeline) FillDefaults() {
	for i := range t.Clips {
		if t.Clips[i].ID == "" {
			t.Clips[i].ID = uuid.NewString()
		}
	}
	for i := range t.Images {
		if t.Images[i].ID == "" {
			t.Images[i].ID = uuid.NewString()
		}
		if t.Images[i].Opacity == 0 {
			t.Images[i].Opacity = DefaultOpacity
		}
	}
	for i := range t.Texts {
		if t.Texts[i].ID == "" {
			t.Texts[i].ID = uuid.NewString()
		}
		if t.Texts[i].FontSize == 0 {
			t.Texts[i].FontSize = DefaultFontSize
		}
		if t.Texts[i].Color == "" {
			t.Texts[i].Color = DefaultTextColor
		}
		if t.Texts[i].Width == 0 {
			t.Texts[i].Width = DefaultTextWidth
		}
		if t.Texts[i].Height == 0 {
			t.Texts[i].Height = DefaultTextHeight
		}
		if t.Texts[i].Opacity == 0 {
			t.Texts[i].Opacity = DefaultOpacity
		}
	}
}

// LoadFile reads a project JSON document produced by the editor.
func LoadFile(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read project file")
	}
	var t Timeline
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "parse project file")
	}
	t.FillDefaults()
	return &t, nil
}
