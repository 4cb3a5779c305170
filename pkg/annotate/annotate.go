// Package annotate turns relevant detections into drawing commands and
// renders them onto a raster canvas.
package annotate

import (
	"fmt"

	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/detection"
)

// Kind is the type of a drawing command.
type Kind int

const (
	Clear Kind = iota
	DrawImage
	StrokeRect
	FillText
)

func (k Kind) String() string {
	switch k {
	case Clear:
		return "clear"
	case DrawImage:
		return "draw_image"
	case StrokeRect:
		return "stroke_rect"
	case FillText:
		return "fill_text"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Style is the stroke and text style of an overlay.
type Style struct {
	Color     string  // Hex color, e.g. "#00FF00"
	LineWidth float64 // Rectangle stroke width in pixels
	FontSize  float64 // Label size in pixels
}

// DefaultStyle is a green 4 px outline with 18 px labels.
var DefaultStyle = Style{
	Color:     "#00FF00",
	LineWidth: 4,
	FontSize:  18,
}

// Label placement
const (
	labelOffset = 10 // Pixels above the box
	labelMinY   = 20 // Labels never go above this line
)

// DrawCommand is one instruction for a presentation sink.
// Only the fields relevant to Kind are set.
type DrawCommand struct {
	Kind  Kind
	Frame camera.Frame  // DrawImage
	Box   detection.Box // Clear (full frame) and StrokeRect
	Text  string        // FillText
	X, Y  float64       // FillText position (baseline)
	Style Style
}

// Base returns the commands that clear the surface and draw the frame on it.
func Base(frame camera.Frame) []DrawCommand {
	full := detection.Box{W: float64(frame.Width), H: float64(frame.Height)}
	return []DrawCommand{
		{Kind: Clear, Box: full},
		{Kind: DrawImage, Frame: frame, Box: full},
	}
}

// Annotate returns an outline and a label for every relevant detection.
func Annotate(relevant []detection.Detection) []DrawCommand {
	return AnnotateStyle(relevant, DefaultStyle)
}

// AnnotateStyle is Annotate with an explicit style.
func AnnotateStyle(relevant []detection.Detection, style Style) []DrawCommand {
	cmds := make([]DrawCommand, 0, 2*len(relevant))
	for _, d := range relevant {
		x, y := LabelPosition(d.Box)
		cmds = append(cmds,
			DrawCommand{Kind: StrokeRect, Box: d.Box, Style: style},
			DrawCommand{Kind: FillText, Text: Label(d), X: x, Y: y, Style: style},
		)
	}
	return cmds
}

// Label formats the overlay text: "<class> (<percent>%)".
func Label(d detection.Detection) string {
	return fmt.Sprintf("%s (%d%%)", d.Class, d.Percent())
}

// LabelPosition puts the label just above the box, or inside the frame
// when the box touches the top edge.
func LabelPosition(b detection.Box) (x, y float64) {
	if b.Y > labelMinY {
		return b.X, b.Y - labelOffset
	}
	return b.X, labelMinY
}
