package filtergraph

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

// OutputLabel is the reserved terminal label of every compiled graph. It is
// never reused as an intermediate name.
const OutputLabel = "outv"

// AudioMap is the constant audio mapping directive: the base clip's audio
// track when present, optional. It does not depend on the overlay passes.
const AudioMap = "0:a?"

// Op is a single filter operation with its pre-formatted arguments.
type Op struct {
	Name string
	Args []string
}

func (o Op) String() string {
	if len(o.Args) == 0 {
		return o.Name
	}
	return o.Name + "=" + strings.Join(o.Args, ":")
}

// Node consumes one or more labeled streams, applies a chain of ops and
// produces exactly one labeled stream.
type Node struct {
	Inputs []string
	Ops    []Op
	Output string
}

func (n Node) String() string {
	var b strings.Builder
	for _, in := range n.Inputs {
		b.WriteString("[" + in + "]")
	}
	ops := make([]string, len(n.Ops))
	for i, op := range n.Ops {
		ops[i] = op.String()
	}
	b.WriteString(strings.Join(ops, ","))
	b.WriteString("[" + n.Output + "]")
	return b.String()
}

// Graph is the compiled processing graph plus its terminal labels.
type Graph struct {
	Nodes    []Node
	Output   string
	AudioMap string
}

// String serializes the graph into the filter_complex grammar.
func (g Graph) String() string {
	lines := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		lines[i] = n.String()
	}
	return strings.Join(lines, ";")
}

// Labels returns every output label in emission order.
func (g Graph) Labels() []string {
	labels := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		labels[i] = n.Output
	}
	return labels
}

// Compile translates a validated timeline into an ordered processing graph.
// It is pure and total: any structurally valid timeline compiles, including
// zero images, zero texts and a single clip. Input stream indices follow the
// materialization order shared with both backends: clips first, then images.
func Compile(t *timeline.Timeline) Graph {
	var nodes []Node

	// Base track always fills the canvas.
	nodes = append(nodes, Node{
		Inputs: []string{"0:v"},
		Ops: []Op{
			{Name: "scale", Args: []string{itoa(t.CanvasWidth), itoa(t.CanvasHeight)}},
			{Name: "setsar", Args: []string{"1"}},
		},
		Output: "base",
	})

	current := "base"
	inputIndex := 1

	for i := 1; i < len(t.Clips); i++ {
		c := t.Clips[i]
		scaled := fmt.Sprintf("scaled_v%d", i)
		next := fmt.Sprintf("v%d", i)

		nodes = append(nodes, Node{
			Inputs: []string{fmt.Sprintf("%d:v", inputIndex)},
			Ops:    []Op{{Name: "scale", Args: []string{ftoa(c.Width), ftoa(c.Height)}}},
			Output: scaled,
		})
		nodes = append(nodes, overlayNode(current, scaled, next, c.X-c.Width/2, c.Y-c.Height/2, c.StartTime, c.EndTime))

		current = next
		inputIndex++
	}

	for i, img := range t.Images {
		scaled := fmt.Sprintf("scaled_img%d", i)
		next := fmt.Sprintf("img%d", i)

		nodes = append(nodes, Node{
			Inputs: []string{fmt.Sprintf("%d:v", inputIndex+i)},
			Ops:    []Op{{Name: "scale", Args: []string{ftoa(img.Width), ftoa(img.Height)}}},
			Output: scaled,
		})
		nodes = append(nodes, overlayNode(current, scaled, next, img.X-img.Width/2, img.Y-img.Height/2, img.StartTime, img.EndTime))

		current = next
	}

	for i, txt := range t.Texts {
		// The text pass may write the terminal label directly, but only
		// when this node is the last node of the whole graph.
		next := fmt.Sprintf("txt%d", i)
		if i == len(t.Texts)-1 && len(t.Images) == 0 && len(t.Clips) == 1 {
			next = OutputLabel
		}

		fontSize := txt.FontSize
		if fontSize == 0 {
			fontSize = timeline.DefaultFontSize
		}
		color := txt.Color
		if color == "" {
			color = timeline.DefaultTextColor
		}
		w := txt.Width
		if w == 0 {
			w = timeline.DefaultTextWidth
		}
		h := txt.Height
		if h == 0 {
			h = timeline.DefaultTextHeight
		}

		nodes = append(nodes, Node{
			Inputs: []string{current},
			Ops: []Op{{
				Name: "drawtext",
				Args: []string{
					"text='" + Escape(txt.Description) + "'",
					"fontsize=" + itoa(fontSize),
					"fontcolor=0x" + strings.TrimPrefix(color, "#"),
					"x=" + itoa(int(math.Round(txt.X-w/2))),
					"y=" + itoa(int(math.Round(txt.Y-h/2))),
					enableArg(txt.StartTime, txt.EndTime),
				},
			}},
			Output: next,
		})

		current = next
	}

	if current != OutputLabel {
		nodes = append(nodes, Node{
			Inputs: []string{current},
			Ops:    []Op{{Name: "copy"}},
			Output: OutputLabel,
		})
	}

	return Graph{Nodes: nodes, Output: OutputLabel, AudioMap: AudioMap}
}

// Verify checks the structural invariants the executors rely on: every
// output label unique, and the terminal label produced exactly once, by a
// node that is present.
func Verify(g Graph) error {
	seen := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if slices.Contains(seen, n.Output) {
			return fmt.Errorf("duplicate output label %q", n.Output)
		}
		seen = append(seen, n.Output)
	}
	if !slices.Contains(seen, g.Output) {
		return fmt.Errorf("terminal label %q is never produced", g.Output)
	}
	return nil
}

func overlayNode(current, scaled, next string, x, y, start, end float64) Node {
	return Node{
		Inputs: []string{current, scaled},
		Ops: []Op{{
			Name: "overlay",
			Args: []string{ftoa(x), ftoa(y), enableArg(start, end)},
		}},
		Output: next,
	}
}

// enableArg gates an overlay or drawtext op to its activation window,
// inclusive at both ends on the render clock.
func enableArg(start, end float64) string {
	return fmt.Sprintf("enable='between(t,%s,%s)'", ftoa(start), ftoa(end))
}

// ftoa formats like the editor serializes numbers: no exponent, no
// trailing zeros, whole values without a decimal point.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
