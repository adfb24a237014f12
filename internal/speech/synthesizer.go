package speech

import (
	"context"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/gordonklaus/portaudio"
)

// Playback format constants.
const (
	playbackSampleRate = 24000
	playbackChunk      = 1024
	// LINEAR16 responses arrive as WAV: a 44-byte RIFF header, then PCM.
	wavHeaderLen = 44
)

// GoogleSynthesizer speaks text through Google Cloud Text-to-Speech and the
// default audio output device. At most one utterance plays at a time; starting
// a new one cancels the previous.
type GoogleSynthesizer struct {
	client       *texttospeech.Client
	languageCode string
	voiceName    string

	mu     sync.Mutex
	cancel chan struct{}
}

// NewGoogleSynthesizer creates a synthesizer bound to one credentialed client.
func NewGoogleSynthesizer(ctx context.Context, languageCode, voiceName string) (*GoogleSynthesizer, error) {
	c, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSynthesizer{client: c, languageCode: languageCode, voiceName: voiceName}, nil
}

// Speak synthesizes text and plays it, blocking until done or cancelled.
func (s *GoogleSynthesizer) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
	}
	cancel := make(chan struct{})
	s.cancel = cancel
	s.mu.Unlock()

	resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: s.languageCode,
			Name:         s.voiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: playbackSampleRate,
		},
	})
	if err != nil {
		return err
	}

	pcm := resp.AudioContent
	if len(pcm) > wavHeaderLen {
		pcm = pcm[wavHeaderLen:]
	}
	return play(ctx, pcm, cancel)
}

// Stop cancels in-flight playback.
func (s *GoogleSynthesizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
}

func play(ctx context.Context, pcm []byte, cancel <-chan struct{}) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer func() { _ = portaudio.Terminate() }()

	buf := make([]int16, playbackChunk)
	stream, err := portaudio.OpenDefaultStream(0, 1, playbackSampleRate, playbackChunk, buf)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return err
	}
	defer func() { _ = stream.Stop() }()

	for off := 0; off < len(pcm); off += playbackChunk * 2 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cancel:
			return nil
		default:
		}

		for i := range buf {
			j := off + i*2
			if j+1 < len(pcm) {
				buf[i] = int16(uint16(pcm[j]) | uint16(pcm[j+1])<<8)
			} else {
				buf[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

// NoopSynthesizer is used when no TTS credentials are configured. Questions
// stay readable in the transcript view; they are just not spoken.
type NoopSynthesizer struct{}

func (NoopSynthesizer) Speak(context.Context, string) error { return nil }
func (NoopSynthesizer) Stop()                               {}
