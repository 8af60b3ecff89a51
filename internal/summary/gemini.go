package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"

	"github.com/jmylchreest/vidbrief/internal/config"
)

// Summarizer providers.
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

const (
	// DefaultMaxInlineBytes caps videos sent inline with the request.
	DefaultMaxInlineBytes int64 = 20 << 20
	// DefaultMimeType is assumed when a VideoRef carries none.
	DefaultMimeType = "video/mp4"

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

var (
	// ErrEmptyResponse is returned when the stream finished without any text.
	ErrEmptyResponse = errors.New("model returned no text")
	// ErrBlocked is returned when the prompt was rejected by safety filters.
	ErrBlocked = errors.New("prompt blocked by model")
	// ErrInlineTooLarge is returned when a local video exceeds the inline limit.
	ErrInlineTooLarge = errors.New("video too large to send inline")
)

// VideoRef points at the video to summarize. Vertex requests use URI when it is
// a gs:// object; everything else is read from LocalPath and sent inline.
type VideoRef struct {
	Name      string
	URI       string
	LocalPath string
	MimeType  string
}

// Summarizer produces the raw tagged text for a video.
type Summarizer interface {
	Summarize(ctx context.Context, video VideoRef) (string, error)
}

// GeminiSummarizer streams generateContent from the Gemini API or Vertex AI
// and concatenates the streamed text.
type GeminiSummarizer struct {
	client    *genai.Client
	provider  string
	model     string
	prompt    string
	timeout   time.Duration
	maxInline int64
	logger    *slog.Logger
}

// Option customises the genai client built by NewGeminiSummarizer.
type Option func(*genai.ClientConfig)

// WithHTTPClient sends requests through hc. For Vertex the client must
// authenticate requests itself.
func WithHTTPClient(hc *http.Client) Option {
	return func(cc *genai.ClientConfig) { cc.HTTPClient = hc }
}

// WithCredentials sets the Vertex credentials, skipping file and ADC lookup.
func WithCredentials(creds *auth.Credentials) Option {
	return func(cc *genai.ClientConfig) { cc.Credentials = creds }
}

// NewGeminiSummarizer builds a summarizer from cfg. Vertex mode reads
// cfg.CredentialsFile when set and otherwise leaves credential discovery to
// Application Default Credentials.
func NewGeminiSummarizer(ctx context.Context, cfg config.SummarizerConfig, opts ...Option) (*GeminiSummarizer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("summarizer.model is required")
	}

	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/")},
	}
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("summarizer.api_key is required for the gemini provider")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	case ProviderVertex:
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("summarizer.project and summarizer.location are required for the vertex provider")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	default:
		return nil, fmt.Errorf("unsupported summarizer provider %q", cfg.Provider)
	}
	for _, opt := range opts {
		opt(cc)
	}

	if cc.Backend == genai.BackendVertexAI && cc.Credentials == nil && cfg.CredentialsFile != "" {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{cloudPlatformScope},
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("loading credentials file: %w", err)
		}
		cc.Credentials = creds
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	s := &GeminiSummarizer{
		client:    client,
		provider:  cfg.Provider,
		model:     cfg.Model,
		prompt:    cfg.Prompt,
		timeout:   cfg.Timeout,
		maxInline: DefaultMaxInlineBytes,
		logger:    slog.Default(),
	}
	if s.prompt == "" {
		s.prompt = DefaultPrompt
	}
	return s, nil
}

// WithLogger sets the logger.
func (s *GeminiSummarizer) WithLogger(logger *slog.Logger) *GeminiSummarizer {
	s.logger = logger
	return s
}

// WithMaxInlineBytes sets the largest local video sent inline.
func (s *GeminiSummarizer) WithMaxInlineBytes(n int64) *GeminiSummarizer {
	s.maxInline = n
	return s
}

// Summarize sends the prompt and video and returns the concatenated streamed text.
func (s *GeminiSummarizer) Summarize(ctx context.Context, video VideoRef) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	videoPart, err := s.videoPart(video)
	if err != nil {
		return "", err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(s.prompt), videoPart}, genai.RoleUser),
	}

	start := time.Now()
	var text strings.Builder
	chunks := 0
	for resp, err := range s.client.Models.GenerateContentStream(ctx, s.model, contents, nil) {
		if err != nil {
			return "", fmt.Errorf("calling %s: %w", s.provider, err)
		}
		chunks++
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return "", fmt.Errorf("%w: %s", ErrBlocked, fb.BlockReason)
		}
		text.WriteString(resp.Text())
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}

	s.logger.Info("video summary generated",
		slog.String("video", video.Name),
		slog.String("model", s.model),
		slog.Int("chunks", chunks),
		slog.Duration("duration", time.Since(start)),
		slog.String("preview", preview(text.String(), 100)))
	return text.String(), nil
}

func (s *GeminiSummarizer) videoPart(video VideoRef) (*genai.Part, error) {
	mimeType := video.MimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	// Only Vertex reads Cloud Storage objects directly.
	if s.provider == ProviderVertex && strings.HasPrefix(video.URI, "gs://") {
		return genai.NewPartFromURI(video.URI, mimeType), nil
	}
	if video.LocalPath == "" {
		return nil, fmt.Errorf("video %q has neither a gs:// URI nor a local file", video.Name)
	}

	info, err := os.Stat(video.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("reading video: %w", err)
	}
	if s.maxInline > 0 && info.Size() > s.maxInline {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInlineTooLarge, info.Size(), s.maxInline)
	}
	data, err := os.ReadFile(video.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("reading video: %w", err)
	}
	return genai.NewPartFromBytes(data, mimeType), nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
