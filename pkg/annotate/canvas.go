package annotate

import (
	"fmt"
	"image"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Canvas is a raster presentation sink backed by gg.
// It is the server-side counterpart of a browser canvas.
type Canvas struct {
	mu sync.Mutex
	dc *gg.Context

	// OnPresent receives the composed picture once per frame
	OnPresent func(img image.Image)
}

// NewCanvas creates an empty canvas; its size follows the frames drawn on it.
func NewCanvas() *Canvas {
	return &Canvas{}
}

// Draw executes commands in order.
func (c *Canvas) Draw(cmds []DrawCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cmd := range cmds {
		if err := c.drawLocked(cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd.Kind, err)
		}
	}
	return nil
}

func (c *Canvas) drawLocked(cmd DrawCommand) error {
	if cmd.Kind == Clear {
		w, h := int(cmd.Box.W), int(cmd.Box.H)
		if w <= 0 || h <= 0 {
			return fmt.Errorf("invalid surface size %dx%d", w, h)
		}
		if c.dc == nil || c.dc.Width() != w || c.dc.Height() != h {
			c.dc = gg.NewContext(w, h)
		}
		c.dc.SetRGB(0, 0, 0)
		c.dc.Clear()
		return nil
	}

	if c.dc == nil {
		return fmt.Errorf("canvas not cleared")
	}

	switch cmd.Kind {
	case DrawImage:
		img, err := cmd.Frame.Decoded()
		if err != nil {
			return err
		}
		c.dc.DrawImage(img, 0, 0)
	case StrokeRect:
		c.dc.SetHexColor(cmd.Style.Color)
		c.dc.SetLineWidth(cmd.Style.LineWidth)
		c.dc.DrawRectangle(cmd.Box.X, cmd.Box.Y, cmd.Box.W, cmd.Box.H)
		c.dc.Stroke()
	case FillText:
		c.dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: cmd.Style.FontSize}))
		c.dc.SetHexColor(cmd.Style.Color)
		c.dc.DrawString(cmd.Text, cmd.X, cmd.Y)
	default:
		return fmt.Errorf("unknown command")
	}
	return nil
}

// Present hands the composed picture to OnPresent.
func (c *Canvas) Present() error {
	c.mu.Lock()
	img := c.imageLocked()
	fn := c.OnPresent
	c.mu.Unlock()

	if img != nil && fn != nil {
		fn(img)
	}
	return nil
}

// Image returns a copy of the current picture, or nil before the first frame.
func (c *Canvas) Image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imageLocked()
}

func (c *Canvas) imageLocked() image.Image {
	if c.dc == nil {
		return nil
	}
	src := c.dc.Image().(*image.RGBA)
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
