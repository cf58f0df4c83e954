package cli

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ayusman/facultyid/internal/recognition"
	"gocv.io/x/gocv"
)

var (
	green = color.RGBA{0, 200, 0, 0}
	red   = color.RGBA{220, 0, 0, 0}
	white = color.RGBA{255, 255, 255, 0}
)

// preview is a debug window over the camera feed. Pressing q asks the
// running pipeline to stop.
type preview struct {
	window *gocv.Window
}

func newPreview(title string) *preview {
	return &preview{window: gocv.NewWindow(title)}
}

// Show draws caption on frame and displays it. It reports false once q or
// Esc has been pressed.
func (p *preview) Show(frame *gocv.Mat, caption string) bool {
	if caption != "" {
		gocv.PutText(frame, caption, image.Pt(10, 24), gocv.FontHersheyPlain, 1.4, white, 2)
	}
	p.window.IMShow(*frame)
	switch p.window.WaitKey(1) {
	case 'q', 'Q', 27:
		return false
	}
	return true
}

// ShowResults draws one box per face labelled with the identity and distance.
func (p *preview) ShowResults(frame *gocv.Mat, results []recognition.MatchResult) bool {
	for _, r := range results {
		c := red
		if r.Matched() {
			c = green
		}
		gocv.Rectangle(frame, r.Box, c, 2)
		gocv.PutText(frame, resultLabel(r), image.Pt(r.Box.Min.X, r.Box.Min.Y-6), gocv.FontHersheyPlain, 1.2, c, 2)
	}
	return p.Show(frame, "")
}

func (p *preview) Close() {
	p.window.Close()
}

// resultLabel renders "label (distance)".
func resultLabel(r recognition.MatchResult) string {
	return fmt.Sprintf("%s (%.2f)", r.Label, r.Distance)
}
