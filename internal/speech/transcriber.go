package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"sortbin/internal/classify"
)

// ErrEmptyAudio is returned when no audio bytes were supplied.
var ErrEmptyAudio = errors.New("speech: empty audio")

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleTranscriber calls the synchronous Recognize API, which accepts
// clips up to one minute long.
type GoogleTranscriber struct {
	recognize    recognizeFunc
	close        func() error
	languageCode string
}

// NewGoogleTranscriber dials the Speech API. credentials follows the same
// forms as the Vision detector.
func NewGoogleTranscriber(ctx context.Context, credentials, languageCode string) (*GoogleTranscriber, error) {
	client, err := gspeech.NewClient(ctx, classify.GoogleClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	recognize := func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}
	return newGoogleTranscriber(recognize, client.Close, languageCode), nil
}

func newGoogleTranscriber(recognize recognizeFunc, closeFn func() error, languageCode string) *GoogleTranscriber {
	if strings.TrimSpace(languageCode) == "" {
		languageCode = "en-US"
	}
	return &GoogleTranscriber{recognize: recognize, close: closeFn, languageCode: languageCode}
}

// Transcribe joins the top alternative of every result.
func (t *GoogleTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               t.languageCode,
			Encoding:                   InferEncoding(mimeType),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
	resp, err := t.recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the underlying client.
func (t *GoogleTranscriber) Close() error {
	if t == nil || t.close == nil {
		return nil
	}
	return t.close()
}

// InferEncoding maps an upload content type to a recognition encoding.
// Unrecognized types are left unspecified so the API can sniff WAV and FLAC
// headers itself.
func InferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
