package speech

import (
	"context"
	"errors"
	"io"
	"sync"

	gspeech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
)

// GoogleRecognizer implements Recognizer using Google Cloud Speech-to-Text
// streaming recognition.
type GoogleRecognizer struct {
	client       *gspeech.Client
	sampleRate   int
	languageCode string

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
}

// NewGoogleRecognizer creates a recognizer bound to one credentialed client.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func NewGoogleRecognizer(ctx context.Context, sampleRate int, languageCode string) (*GoogleRecognizer, error) {
	c, err := gspeech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleRecognizer{client: c, sampleRate: sampleRate, languageCode: languageCode}, nil
}

// Start opens a streaming session, sends the recognition config, and spawns
// the receive loop.
func (r *GoogleRecognizer) Start(ctx context.Context, cb Callback) error {
	stream, err := r.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	// Streaming config must be the first message on the wire.
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: int32(r.sampleRate),
					LanguageCode:    r.languageCode,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.stream = stream
	r.mu.Unlock()

	go listen(stream, cb)
	return nil
}

// SendAudio pushes one audio chunk into the active stream.
func (r *GoogleRecognizer) SendAudio(_ context.Context, audio []byte) error {
	r.mu.Lock()
	stream := r.stream
	r.mu.Unlock()

	if stream == nil {
		return errors.New("recognition stream not started")
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the send side; the receive loop drains remaining results.
func (r *GoogleRecognizer) Close() error {
	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.CloseSend()
}

func listen(stream speechpb.Speech_StreamingRecognizeClient, cb Callback) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				cb.OnEnd()
			} else {
				cb.OnError(err)
			}
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			alt := result.Alternatives[0]
			if result.IsFinal {
				cb.OnFinal(alt.Transcript, float64(alt.Confidence))
			} else {
				cb.OnPartial(alt.Transcript)
			}
		}
	}
}
