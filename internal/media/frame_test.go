package media

import "testing"

func uniformFrame(w, h int, luma uint8) *Frame {
	f := &Frame{Pix: make([]uint8, w*h), Width: w, Height: h}
	for i := range f.Pix {
		f.Pix[i] = luma
	}
	return f
}

func TestStatsUniform(t *testing.T) {
	f := uniformFrame(8, 4, 100)
	s := f.Stats()

	if s.MeanLuma != 100 {
		t.Errorf("MeanLuma = %v, want 100", s.MeanLuma)
	}
	if s.MaxLuma != 100 {
		t.Errorf("MaxLuma = %v, want 100", s.MaxLuma)
	}
	if s.NonBlackRatio != 1 {
		t.Errorf("NonBlackRatio = %v, want 1", s.NonBlackRatio)
	}
}

func TestBlankDetection(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  bool
	}{
		{"all zero", uniformFrame(16, 9, 0), true},
		{"dim but uniform", uniformFrame(16, 9, 5), true},
		{"bright", uniformFrame(16, 9, 120), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.Blank(); got != tt.want {
				t.Errorf("Blank() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlankSinglePixelHighlight(t *testing.T) {
	// One bright pixel lifts max luminance past the threshold.
	f := uniformFrame(16, 9, 0)
	f.Pix[0] = 200
	if f.Blank() {
		t.Error("frame with a bright pixel should not be blank")
	}
}

func TestMirrored(t *testing.T) {
	f := &Frame{Pix: []uint8{1, 2, 3, 4, 5, 6}, Width: 3, Height: 2}
	m := f.Mirrored()

	want := []uint8{3, 2, 1, 6, 5, 4}
	for i, p := range want {
		if m.Pix[i] != p {
			t.Errorf("Pix[%d] = %d, want %d", i, m.Pix[i], p)
		}
	}
	// Source untouched.
	if f.Pix[0] != 1 {
		t.Error("Mirrored must not mutate the source frame")
	}
}

func TestFrameFromYUYV(t *testing.T) {
	// YUYV packs Y at even offsets: Y0 U Y1 V.
	data := []byte{10, 128, 20, 128, 30, 128, 40, 128}
	f := FrameFromYUYV(data, 4, 1)

	want := []uint8{10, 20, 30, 40}
	for i, p := range want {
		if f.Pix[i] != p {
			t.Errorf("Pix[%d] = %d, want %d", i, f.Pix[i], p)
		}
	}
}

func TestDownsampleDimensions(t *testing.T) {
	f := uniformFrame(640, 360, 77)
	d := f.Downsample(96, 54)

	if d.Width != 96 || d.Height != 54 {
		t.Fatalf("dimensions = %dx%d, want 96x54", d.Width, d.Height)
	}
	if len(d.Pix) != 96*54 {
		t.Errorf("pixel count = %d, want %d", len(d.Pix), 96*54)
	}
	// Uniform input stays uniform through bilinear scaling.
	if d.Pix[0] != 77 || d.Pix[len(d.Pix)-1] != 77 {
		t.Errorf("downsampled luma = %d/%d, want 77", d.Pix[0], d.Pix[len(d.Pix)-1])
	}
}
