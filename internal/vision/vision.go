package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/hal/internal/llm"
)

const (
	DefaultModel     = "gpt-4.1-mini"
	DefaultMaxTokens = 1800
	DefaultTimeout   = 60 * time.Second
)

// Prompt is sent as the first content part of every vision request.
const Prompt = "Extract the main textual content from these webpage screenshots.\n" +
	"Return strict JSON with keys:\n" +
	"- text_markdown (string)\n" +
	"- tables_markdown (string)\n" +
	"- confidence (number 0..1)\n" +
	"- warnings (array of strings)\n" +
	"- missing_notes (string)\n" +
	"Focus on clean markdown. Include warnings for tiny/blurred text."

var (
	// ErrUnavailable means no vision backend is configured.
	ErrUnavailable = errors.New("vision extraction unavailable")
	// ErrMalformed means the model reply held no usable JSON object.
	ErrMalformed = errors.New("vision model returned non-JSON payload")
	// ErrNoScreenshots means there was nothing to look at.
	ErrNoScreenshots = errors.New("no screenshots to extract from")
)

// Result is the structured reply of the vision model.
type Result struct {
	TextMarkdown   string
	TablesMarkdown *string
	Confidence     *float64
	Warnings       []string
	MissingNotes   string
}

// Extractor turns screenshots into text with one chat completion call.
type Extractor struct {
	Client    llm.Client
	Model     string
	MaxTokens int
	// Timeout bounds the model round trip; zero uses DefaultTimeout.
	Timeout time.Duration
	// JSONMode requests the json_object response format.
	JSONMode bool
}

// Available reports whether a backend is configured.
func (e *Extractor) Available() bool {
	return e != nil && e.Client != nil
}

// Extract sends every screenshot in paths to the model and parses its reply.
func (e *Extractor) Extract(ctx context.Context, paths []string) (Result, error) {
	if !e.Available() {
		return Result{}, ErrUnavailable
	}
	if len(paths) == 0 {
		return Result{}, ErrNoScreenshots
	}

	images, err := encodeImages(ctx, paths)
	if err != nil {
		return Result{}, err
	}

	parts := make([]openai.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: Prompt})
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model:     e.model(),
		MaxTokens: e.maxTokens(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: 0.0,
		N:           1,
	}
	if e.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.Client.CreateChatCompletion(cctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("vision request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty choices", ErrMalformed)
	}
	log.Debug().
		Str("model", req.Model).
		Int("images", len(images)).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("elapsed", time.Since(start)).
		Msg("vision completion")

	return Parse(resp.Choices[0].Message.Content)
}

func (e *Extractor) model() string {
	if strings.TrimSpace(e.Model) == "" {
		return DefaultModel
	}
	return e.Model
}

func (e *Extractor) maxTokens() int {
	if e.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return e.MaxTokens
}

// encodeImages reads and base64-encodes screenshots concurrently, keeping the
// input order.
func encodeImages(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read screenshot: %w", err)
			}
			out[i] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
