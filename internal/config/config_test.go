package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.DefaultTimerMinutes != 7 {
		t.Errorf("DefaultTimerMinutes = %d, want 7", cfg.DefaultTimerMinutes)
	}
	if len(cfg.VirtualCameraSignatures) != 7 {
		t.Errorf("VirtualCameraSignatures length = %d, want 7", len(cfg.VirtualCameraSignatures))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("SAMPLE_RATE", "8000")
	t.Setenv("VIRTUAL_CAMERA_SIGNATURES", "fakecam, loopcam")

	cfg := Load()

	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", cfg.SampleRate)
	}
	want := []string{"fakecam", "loopcam"}
	if len(cfg.VirtualCameraSignatures) != len(want) {
		t.Fatalf("signatures = %v, want %v", cfg.VirtualCameraSignatures, want)
	}
	for i, s := range want {
		if cfg.VirtualCameraSignatures[i] != s {
			t.Errorf("signatures[%d] = %q, want %q", i, cfg.VirtualCameraSignatures[i], s)
		}
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "not-a-number")
	t.Setenv("PREVIEW_FPS", "nope")

	cfg := Load()

	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want default 16000", cfg.SampleRate)
	}
	if cfg.PreviewFPS != 30.0 {
		t.Errorf("PreviewFPS = %v, want default 30.0", cfg.PreviewFPS)
	}
}
