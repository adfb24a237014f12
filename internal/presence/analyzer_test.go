package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kalkeesh/AI-mock-interviews/internal/media"
)

func litFrame(luma uint8) *media.Frame {
	f := &media.Frame{Pix: make([]uint8, 640*360), Width: 640, Height: 360}
	for i := range f.Pix {
		f.Pix[i] = luma
	}
	return f
}

type scriptedSource struct {
	mu     sync.Mutex
	frames []*media.Frame
	idx    int
	err    error
}

func (s *scriptedSource) Frame(context.Context) (*media.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	f := s.frames[s.idx%len(s.frames)]
	s.idx++
	return f, nil
}

func TestLumaStrategyDarkFrame(t *testing.T) {
	s := NewLumaStrategy()
	sample, err := s.Analyze(litFrame(5))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if sample.FaceVisible || sample.Centered {
		t.Error("dark frame should not register presence")
	}
	if sample.HasMovement {
		t.Error("first frame has no movement baseline")
	}
}

func TestLumaStrategyLitFrame(t *testing.T) {
	s := NewLumaStrategy()
	sample, err := s.Analyze(litFrame(120))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !sample.FaceVisible {
		t.Error("lit frame should register presence")
	}
	if !sample.Centered {
		t.Error("fallback marks lit frames centered")
	}
}

func TestLumaStrategyMovement(t *testing.T) {
	s := NewLumaStrategy()
	if _, err := s.Analyze(litFrame(100)); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	sample, err := s.Analyze(litFrame(100))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !sample.HasMovement {
		t.Fatal("second frame should carry a movement estimate")
	}
	if sample.Movement != 0 {
		t.Errorf("identical frames should yield zero movement, got %v", sample.Movement)
	}

	// A big luminance jump saturates the scaled diff.
	sample, err = s.Analyze(litFrame(240))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if sample.Movement != 1 {
		t.Errorf("large frame diff should clamp to 1, got %v", sample.Movement)
	}
}

func TestLumaStrategyReset(t *testing.T) {
	s := NewLumaStrategy()
	if _, err := s.Analyze(litFrame(100)); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	s.Reset()

	sample, err := s.Analyze(litFrame(100))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if sample.HasMovement {
		t.Error("Reset should clear the movement baseline")
	}
}

func TestSelectFallsBackWithoutCascade(t *testing.T) {
	if got := Select("").Name(); got != "luminance-fallback" {
		t.Errorf("strategy = %q, want luminance-fallback", got)
	}
	if got := Select("/nonexistent/cascade.bin").Name(); got != "luminance-fallback" {
		t.Errorf("strategy = %q, want luminance-fallback", got)
	}
}

func TestAnalyzerTicksAndStops(t *testing.T) {
	src := &scriptedSource{frames: []*media.Frame{litFrame(120)}}
	a := NewAnalyzer(src, NewLumaStrategy(), 10*time.Millisecond)

	var mu sync.Mutex
	var got []Sample
	a.Start(func(s Sample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d samples before deadline", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Stop()
	a.Stop()

	mu.Lock()
	first := got[0]
	mu.Unlock()
	if !first.FaceVisible {
		t.Error("lit frames should produce visible samples")
	}
}

func TestAnalyzerToleratesSourceErrors(t *testing.T) {
	src := &scriptedSource{err: context.Canceled}
	a := NewAnalyzer(src, NewLumaStrategy(), 10*time.Millisecond)

	var mu sync.Mutex
	count := 0
	a.Start(func(s Sample) {
		mu.Lock()
		count++
		mu.Unlock()
		if s.FaceVisible || s.HasMovement {
			t.Error("failed tick must emit a zero sample")
		}
	})
	defer a.Stop()

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := count
		mu.Unlock()
		if n >= 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("analyzer stopped ticking after source errors")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
