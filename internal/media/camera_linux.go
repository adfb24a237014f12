//go:build linux

package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blackjack/webcam"
)

// V4L2 fourcc codes for the pixel formats the probe understands.
const (
	fourccYUYV = webcam.PixelFormat(0x56595559)
	fourccMJPG = webcam.PixelFormat(0x47504A4D)
)

// v4l2Provider enumerates and opens cameras through the V4L2 stack.
type v4l2Provider struct{}

// NewProvider returns the platform camera provider.
func NewProvider() Provider { return &v4l2Provider{} }

func (p *v4l2Provider) Prime(ctx context.Context) error {
	devices, err := p.Enumerate(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("no video devices present")
	}
	cam, err := webcam.Open(devices[0].ID)
	if err != nil {
		return err
	}
	return cam.Close()
}

func (p *v4l2Provider) Enumerate(_ context.Context) ([]DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	devices := make([]DeviceInfo, 0, len(paths))
	for _, path := range paths {
		devices = append(devices, DeviceInfo{ID: path, Label: sysfsLabel(path)})
	}
	return devices, nil
}

// sysfsLabel reads the driver-reported card name for a /dev/videoN node.
func sysfsLabel(devPath string) string {
	name := filepath.Base(devPath)
	data, err := os.ReadFile(filepath.Join("/sys/class/video4linux", name, "name"))
	if err != nil {
		return name
	}
	return strings.TrimSpace(string(data))
}

func (p *v4l2Provider) Open(ctx context.Context, c Candidate) (Stream, error) {
	path := c.DeviceID
	if path == "" {
		devices, err := p.Enumerate(ctx)
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no video devices present")
		}
		path = devices[0].ID
	}

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}

	format, ok := pickFormat(cam)
	if !ok {
		_ = cam.Close()
		return nil, fmt.Errorf("%s: no supported pixel format (want YUYV or MJPG)", path)
	}

	w, h := uint32(c.Width), uint32(c.Height)
	if w == 0 || h == 0 {
		w, h = 640, 360
	}
	format, fw, fh, err := cam.SetImageFormat(format, w, h)
	if err != nil {
		_ = cam.Close()
		return nil, err
	}

	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, err
	}

	return &v4l2Stream{cam: cam, format: format, width: int(fw), height: int(fh)}, nil
}

func pickFormat(cam *webcam.Webcam) (webcam.PixelFormat, bool) {
	formats := cam.GetSupportedFormats()
	if _, ok := formats[fourccYUYV]; ok {
		return fourccYUYV, true
	}
	if _, ok := formats[fourccMJPG]; ok {
		return fourccMJPG, true
	}
	return 0, false
}

type v4l2Stream struct {
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int

	mu       sync.Mutex
	gotFrame bool
	stopped  bool
	stopOnce sync.Once
}

func (s *v4l2Stream) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

func (s *v4l2Stream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Dimensions count as known only once a frame has been delivered.
	if !s.gotFrame {
		return 0, 0
	}
	return s.width, s.height
}

func (s *v4l2Stream) ReadFrame(ctx context.Context) (*Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := s.cam.WaitForFrame(1); err != nil {
			if _, timeout := err.(*webcam.Timeout); timeout {
				continue
			}
			return nil, err
		}

		data, err := s.cam.ReadFrame()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		frame, err := s.decode(data)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.gotFrame = true
		s.mu.Unlock()
		return frame, nil
	}
}

func (s *v4l2Stream) decode(data []byte) (*Frame, error) {
	switch s.format {
	case fourccYUYV:
		return FrameFromYUYV(data, s.width, s.height), nil
	case fourccMJPG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if g, ok := img.(*image.Gray); ok {
			return FrameFromGray(g), nil
		}
		b := img.Bounds()
		gray := image.NewGray(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				gray.Set(x, y, img.At(x, y))
			}
		}
		return FrameFromGray(gray), nil
	default:
		return nil, fmt.Errorf("unsupported pixel format %v", s.format)
	}
}

func (s *v4l2Stream) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		_ = s.cam.StopStreaming()
		_ = s.cam.Close()
	})
}
