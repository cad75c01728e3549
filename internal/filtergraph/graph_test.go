package filtergraph

import (
	"strings"
	"testing"

	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

func baseTimeline() *timeline.Timeline {
	return &timeline.Timeline{
		CanvasWidth:  640,
		CanvasHeight: 360,
		Clips: []timeline.Clip{
			{ID: "c0", Source: "base.mp4", StartTime: 0, EndTime: 10},
		},
	}
}

func TestCompileSingleClip(t *testing.T) {
	g := Compile(baseTimeline())

	if len(g.Nodes) != 2 {
		t.Fatalf("expected 2 nodes (scale, copy), got %d: %s", len(g.Nodes), g.String())
	}
	if g.Nodes[0].String() != "[0:v]scale=640:360,setsar=1[base]" {
		t.Fatalf("unexpected base node: %s", g.Nodes[0].String())
	}
	if g.Nodes[1].String() != "[base]copy[outv]" {
		t.Fatalf("expected pass-through to terminal, got: %s", g.Nodes[1].String())
	}
	if g.Output != OutputLabel {
		t.Fatalf("terminal label = %q, want %q", g.Output, OutputLabel)
	}
	if g.AudioMap != "0:a?" {
		t.Fatalf("audio map = %q", g.AudioMap)
	}
}

func TestCompileImageOverlay(t *testing.T) {
	tl := baseTimeline()
	tl.Images = []timeline.ImageOverlay{
		{ID: "i0", Source: "logo.png", X: 100, Y: 100, Width: 50, Height: 50, StartTime: 2, EndTime: 5},
	}

	g := Compile(tl)

	want := []string{
		"[0:v]scale=640:360,setsar=1[base]",
		"[1:v]scale=50:50[scaled_img0]",
		"[base][scaled_img0]overlay=75:75:enable='between(t,2,5)'[img0]",
		"[img0]copy[outv]",
	}
	got := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		got[i] = n.String()
	}
	if len(got) != len(want) {
		t.Fatalf("node count = %d, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("node %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCompileExtraClips(t *testing.T) {
	tl := baseTimeline()
	tl.Clips = append(tl.Clips, timeline.Clip{
		ID: "c1", Source: "pip.mp4", X: 320, Y: 180, Width: 160, Height: 90, StartTime: 1, EndTime: 4,
	})

	g := Compile(tl)

	want := []string{
		"[0:v]scale=640:360,setsar=1[base]",
		"[1:v]scale=160:90[scaled_v1]",
		"[base][scaled_v1]overlay=240:135:enable='between(t,1,4)'[v1]",
		"[v1]copy[outv]",
	}
	for i, n := range g.Nodes {
		if n.String() != want[i] {
			t.Fatalf("node %d = %q, want %q", i, n.String(), want[i])
		}
	}
}

func TestCompileTextTerminal(t *testing.T) {
	tl := baseTimeline()
	tl.Texts = []timeline.TextOverlay{
		{Description: "50% off: now!", X: 100, Y: 100, StartTime: 1, EndTime: 3},
	}

	g := Compile(tl)

	if len(g.Nodes) != 2 {
		t.Fatalf("expected scale + drawtext, got %d nodes", len(g.Nodes))
	}
	// Single clip, no images: the last text node writes the terminal label
	// directly and no copy node is appended.
	last := g.Nodes[1].String()
	wantLast := `[base]drawtext=text='50% off\: now!':fontsize=24:fontcolor=0xFFFFFF:x=50:y=75:enable='between(t,1,3)'[outv]`
	if last != wantLast {
		t.Fatalf("drawtext node = %q, want %q", last, wantLast)
	}
}

func TestCompileTextNotTerminalWithImages(t *testing.T) {
	tl := baseTimeline()
	tl.Images = []timeline.ImageOverlay{
		{Source: "logo.png", X: 50, Y: 50, Width: 20, Height: 20, StartTime: 0, EndTime: 1},
	}
	tl.Texts = []timeline.TextOverlay{
		{Description: "hi", X: 10, Y: 10, StartTime: 0, EndTime: 1},
	}

	g := Compile(tl)

	lastNode := g.Nodes[len(g.Nodes)-1]
	if lastNode.String() != "[txt0]copy[outv]" {
		t.Fatalf("expected pass-through after txt0, got %q", lastNode.String())
	}
}

func TestCompileLabelUniqueness(t *testing.T) {
	tl := baseTimeline()
	tl.Clips = append(tl.Clips,
		timeline.Clip{Source: "a.mp4", X: 10, Y: 10, Width: 100, Height: 50, StartTime: 0, EndTime: 2},
		timeline.Clip{Source: "b.mp4", X: 20, Y: 20, Width: 100, Height: 50, StartTime: 2, EndTime: 4},
	)
	tl.Images = []timeline.ImageOverlay{
		{Source: "x.png", X: 5, Y: 5, Width: 10, Height: 10, StartTime: 0, EndTime: 1},
		{Source: "y.png", X: 6, Y: 6, Width: 10, Height: 10, StartTime: 1, EndTime: 2},
	}
	tl.Texts = []timeline.TextOverlay{
		{Description: "one", X: 1, Y: 1, StartTime: 0, EndTime: 1},
		{Description: "two", X: 2, Y: 2, StartTime: 1, EndTime: 2},
	}

	g := Compile(tl)
	if err := Verify(g); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	seen := map[string]int{}
	for _, label := range g.Labels() {
		seen[label]++
	}
	for label, n := range seen {
		if n != 1 {
			t.Fatalf("label %q produced %d times", label, n)
		}
	}
	if seen[OutputLabel] != 1 {
		t.Fatalf("terminal label produced %d times", seen[OutputLabel])
	}
}

func TestCompileFractionalPlacement(t *testing.T) {
	tl := baseTimeline()
	tl.Images = []timeline.ImageOverlay{
		{Source: "logo.png", X: 100, Y: 100, Width: 51, Height: 51, StartTime: 0.5, EndTime: 2.25},
	}

	g := Compile(tl)
	overlay := g.Nodes[2].String()
	want := "[base][scaled_img0]overlay=74.5:74.5:enable='between(t,0.5,2.25)'[img0]"
	if overlay != want {
		t.Fatalf("overlay node = %q, want %q", overlay, want)
	}
}

func TestCompileOffCanvasPlacement(t *testing.T) {
	tl := baseTimeline()
	tl.Images = []timeline.ImageOverlay{
		{Source: "logo.png", X: -500, Y: -500, Width: 10, Height: 10, StartTime: 0, EndTime: 1},
	}

	// Boxes entirely outside the canvas compile without clamping.
	g := Compile(tl)
	overlay := g.Nodes[2].String()
	if !strings.Contains(overlay, "overlay=-505:-505") {
		t.Fatalf("expected unclamped placement, got %q", overlay)
	}
}

func TestCompileTextDefaults(t *testing.T) {
	tl := baseTimeline()
	tl.Texts = []timeline.TextOverlay{
		{Description: "styled", FontSize: 36, Color: "#FF0000", X: 200, Y: 100, Width: 80, Height: 40, StartTime: 0, EndTime: 1},
	}

	g := Compile(tl)
	node := g.Nodes[1].String()
	for _, fragment := range []string{"fontsize=36", "fontcolor=0xFF0000", "x=160", "y=80"} {
		if !strings.Contains(node, fragment) {
			t.Fatalf("drawtext node %q missing %q", node, fragment)
		}
	}
}

func TestSerializationJoinsWithSemicolons(t *testing.T) {
	tl := baseTimeline()
	tl.Texts = []timeline.TextOverlay{
		{Description: "a", X: 1, Y: 1, StartTime: 0, EndTime: 1},
	}
	g := Compile(tl)
	s := g.String()
	if strings.Count(s, ";") != len(g.Nodes)-1 {
		t.Fatalf("expected %d separators in %q", len(g.Nodes)-1, s)
	}
}

func TestVerifyRejectsDuplicates(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{Inputs: []string{"0:v"}, Ops: []Op{{Name: "copy"}}, Output: "a"},
			{Inputs: []string{"a"}, Ops: []Op{{Name: "copy"}}, Output: "a"},
		},
		Output: "a",
	}
	if err := Verify(g); err == nil {
		t.Fatal("expected duplicate label error")
	}
}

func TestVerifyRejectsMissingTerminal(t *testing.T) {
	g := Graph{
		Nodes:  []Node{{Inputs: []string{"0:v"}, Ops: []Op{{Name: "copy"}}, Output: "a"}},
		Output: OutputLabel,
	}
	if err := Verify(g); err == nil {
		t.Fatal("expected missing terminal error")
	}
}
