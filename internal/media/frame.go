// Package media negotiates camera and microphone hardware for a session.
// It owns the device handles exclusively: the session orchestrator only ever
// sees acquired streams through the Acquirer and Mic types, and teardown of
// both is idempotent.
package media

import (
	"image"

	"github.com/nfnt/resize"
)

// Frame is a single grayscale video frame. Camera backends convert their
// native pixel format to luminance once, at capture time, since every
// downstream consumer (liveness probe, presence analyzer, preview) works on
// luminance.
type Frame struct {
	Pix    []uint8
	Width  int
	Height int
}

// FrameStats summarizes the luminance distribution of a frame.
type FrameStats struct {
	MeanLuma      float64
	MaxLuma       uint8
	NonBlackRatio float64 // fraction of pixels above the black threshold
}

// blackPixelThreshold marks a pixel as non-black for the liveness probe.
const blackPixelThreshold = 16

// Stats computes luminance statistics over the whole frame.
func (f *Frame) Stats() FrameStats {
	if len(f.Pix) == 0 {
		return FrameStats{}
	}

	var sum int64
	var max uint8
	nonBlack := 0
	for _, p := range f.Pix {
		sum += int64(p)
		if p > max {
			max = p
		}
		if p > blackPixelThreshold {
			nonBlack++
		}
	}

	n := float64(len(f.Pix))
	return FrameStats{
		MeanLuma:      float64(sum) / n,
		MaxLuma:       max,
		NonBlackRatio: float64(nonBlack) / n,
	}
}

// Blank reports whether the frame is effectively black: mean luminance below 8,
// max luminance below 25, and under 1% non-black pixels.
func (f *Frame) Blank() bool {
	s := f.Stats()
	return s.MeanLuma < 8 && s.MaxLuma < 25 && s.NonBlackRatio < 0.01
}

// Mirrored returns a horizontally flipped copy for the self-view preview.
func (f *Frame) Mirrored() *Frame {
	out := &Frame{Pix: make([]uint8, len(f.Pix)), Width: f.Width, Height: f.Height}
	for y := 0; y < f.Height; y++ {
		row := y * f.Width
		for x := 0; x < f.Width; x++ {
			out.Pix[row+x] = f.Pix[row+f.Width-1-x]
		}
	}
	return out
}

// Gray wraps the frame as an image.Gray sharing the pixel buffer.
func (f *Frame) Gray() *image.Gray {
	return &image.Gray{
		Pix:    f.Pix,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Downsample scales the frame to w x h.
func (f *Frame) Downsample(w, h int) *Frame {
	img := resize.Resize(uint(w), uint(h), f.Gray(), resize.Bilinear)

	out := &Frame{Pix: make([]uint8, w*h), Width: w, Height: h}
	if g, ok := img.(*image.Gray); ok && g.Stride == w {
		copy(out.Pix, g.Pix)
		return out
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out.Pix[y*w+x] = uint8((299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000)
		}
	}
	return out
}

// FrameFromYUYV extracts the luminance plane from a packed YUYV 4:2:2 buffer.
func FrameFromYUYV(data []byte, w, h int) *Frame {
	f := &Frame{Pix: make([]uint8, w*h), Width: w, Height: h}
	n := min(len(data)/2, w*h)
	for i := 0; i < n; i++ {
		f.Pix[i] = data[i*2] // Y bytes interleave at even offsets
	}
	return f
}

// FrameFromGray builds a frame from an image.Gray, copying pixels.
func FrameFromGray(g *image.Gray) *Frame {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	f := &Frame{Pix: make([]uint8, w*h), Width: w, Height: h}
	for y := 0; y < h; y++ {
		copy(f.Pix[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
	}
	return f
}
