// Package speech transcribes voice messages with the OpenAI audio API.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/observe"
)

// MaxAudioBytes is the largest recording accepted for transcription.
const MaxAudioBytes = 25 << 20

var (
	ErrEmptyTranscript = errors.New("speech: empty transcript")
	ErrTooLarge        = errors.New("speech: audio too large")
)

// Transcriber downloads recordings and transcribes them.
type Transcriber struct {
	client   oai.Client
	http     *http.Client
	model    string
	language string
	metrics  *observe.Metrics
}

type config struct {
	baseURL    string
	language   string
	maxRetries int
	httpClient *http.Client
	metrics    *observe.Metrics
}

// Option configures a Transcriber.
type Option func(*config)

func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the ISO-639-1 language hint. Default "ru".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithHTTPClient sets the client used to download recordings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// New constructs a Transcriber. An empty model selects whisper-1.
func New(apiKey, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("speech: apiKey must not be empty")
	}
	if model == "" {
		model = oai.AudioModelWhisper1
	}

	cfg := &config{language: "ru", maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.metrics == nil {
		cfg.metrics = observe.DefaultMetrics()
	}

	return &Transcriber{
		client:   oai.NewClient(reqOpts...),
		http:     cfg.httpClient,
		model:    model,
		language: cfg.language,
		metrics:  cfg.metrics,
	}, nil
}

// Transcribe downloads audio and returns its text.
func (t *Transcriber) Transcribe(ctx context.Context, audio chat.AudioRef) (text string, err error) {
	if audio.Size > MaxAudioBytes {
		return "", ErrTooLarge
	}

	data, err := t.download(ctx, audio.URL)
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer func() { t.metrics.RecordProvider(ctx, "transcribe", start, err) }()

	filename := audio.Filename
	if filename == "" {
		filename = "voice.ogg"
	}
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/ogg"
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), filename, contentType),
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("speech: transcription: %w", err)
	}
	text = strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (t *Transcriber) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("speech: build download request: %w", err)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech: download audio: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("speech: read audio: %w", err)
	}
	if len(data) > MaxAudioBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
