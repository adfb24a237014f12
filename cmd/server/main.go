// Interview session server - orchestrates camera, microphone, speech, and WebSocket connections
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalkeesh/AI-mock-interviews/internal/config"
	"github.com/kalkeesh/AI-mock-interviews/internal/media"
	"github.com/kalkeesh/AI-mock-interviews/internal/metrics"
	"github.com/kalkeesh/AI-mock-interviews/internal/presence"
	"github.com/kalkeesh/AI-mock-interviews/internal/scoring"
	"github.com/kalkeesh/AI-mock-interviews/internal/server"
	"github.com/kalkeesh/AI-mock-interviews/internal/session"
	"github.com/kalkeesh/AI-mock-interviews/internal/speech"
	"github.com/kalkeesh/AI-mock-interviews/internal/store"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Camera pipeline: provider -> acquirer -> preview -> presence analyzer
	preview := media.NewPreview(cfg.PreviewFPS)
	acquirer := media.NewAcquirer(media.NewProvider(), preview, cfg.VirtualCameraSignatures, cfg.FrameWidth, cfg.FrameHeight)
	strategy := presence.Select(cfg.CascadePath)
	analyzer := presence.NewAnalyzer(acquirer, strategy, time.Duration(cfg.AnalyzerInterval*float64(time.Second)))

	mic := media.NewMic(cfg.SampleRate)

	// Speech is best-effort: without cloud credentials the session runs with
	// typed answers and silent questions.
	var rec speech.Recognizer
	if r, err := speech.NewGoogleRecognizer(ctx, cfg.SampleRate, cfg.LanguageCode); err != nil {
		slog.Warn("speech recognition unavailable", "error", err)
	} else {
		rec = r
	}

	var synth speech.Synthesizer
	if s, err := speech.NewGoogleSynthesizer(ctx, cfg.LanguageCode, cfg.TTSVoice); err != nil {
		slog.Warn("speech synthesis unavailable", "error", err)
		synth = speech.NoopSynthesizer{}
	} else {
		synth = s
	}

	// The speech channel notifies the manager, which is created right after.
	var mgr *session.Manager
	channel := speech.NewChannel(rec, synth, mic.Output(), func(e speech.Event) {
		mgr.HandleSpeechEvent(e)
	})

	mgr = session.NewManager(session.Deps{
		Camera:         acquirer,
		Mic:            mic,
		Analyzer:       analyzer,
		Speech:         channel,
		Scorer:         scoring.NewClient(cfg.ScoringURL),
		Store:          st,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
		FallbackEmail:  cfg.AdminEmail,
		DefaultMinutes: cfg.DefaultTimerMinutes,
	})
	go mgr.Run(ctx)

	srv := server.New(mgr, st, preview)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open
	}

	go func() {
		slog.Info("interview server starting", "http", cfg.HTTPAddr, "scoring", cfg.ScoringURL)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	analyzer.Stop()
	acquirer.Stop()
	mic.Stop()
	preview.Stop()
	slog.Info("shutdown complete")
}
