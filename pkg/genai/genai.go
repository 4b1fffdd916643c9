// Package genai wraps an OpenAI-compatible API for the three calls the
// studio makes: structured vision analysis, image generation and image edit.
// Every call goes through a circuit breaker and a shared rate limiter.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/pinstripe-labs/carart/pkg/resilience"
)

var (
	ErrEmptyResponse = errors.New("genai: empty response")
	ErrNoAPIKey      = errors.New("genai: api key not configured")
)

// api is the part of *openai.Client used here.
type api interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
	CreateEditImage(ctx context.Context, req openai.ImageEditRequest) (openai.ImageResponse, error)
}

// Config configures a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	VisionModel string
	ImageModel  string
	ImageSize   string
	Breaker     *resilience.Breaker
	Limiter     *resilience.Limiter
	Logger      *slog.Logger
}

// Client talks to the model API.
type Client struct {
	api         api
	visionModel string
	imageModel  string
	imageSize   string
	breaker     *resilience.Breaker
	limiter     *resilience.Limiter
	log         *slog.Logger
}

// New creates a Client. A nil Breaker gets the defaults; a nil Limiter means
// no client-side limit.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newClient(openai.NewClientWithConfig(oc), cfg), nil
}

func newClient(a api, cfg Config) *Client {
	if cfg.VisionModel == "" {
		cfg.VisionModel = openai.GPT4o
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE2
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize1024x1024
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		api:         a,
		visionModel: cfg.VisionModel,
		imageModel:  cfg.ImageModel,
		imageSize:   cfg.ImageSize,
		breaker:     cfg.Breaker,
		limiter:     cfg.Limiter,
		log:         cfg.Logger.With("component", "genai"),
	}
}

// guard applies the limiter and breaker around f.
func guard[T any](ctx context.Context, c *Client, op string, f func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("genai: %s: %w", op, err)
		}
	}
	v, err := resilience.Do(ctx, c.breaker, f).Unwrap()
	if err != nil {
		c.log.WarnContext(ctx, "model call failed", "op", op, "error", err)
		return zero, fmt.Errorf("genai: %s: %w", op, err)
	}
	return v, nil
}

// VisionJSON sends prompt plus one image (URL or data URL) and decodes the
// JSON object the model replies with into out.
func (c *Client) VisionJSON(ctx context.Context, prompt, imageURL string, out any) error {
	content, err := guard(ctx, c, "vision", func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.visionModel,
			Messages: []openai.ChatCompletionMessage{{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    imageURL,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			}},
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", ErrEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFence(content)), out); err != nil {
		return fmt.Errorf("genai: vision: decode reply: %w", err)
	}
	return nil
}

// stripFence removes a ```json fence some models wrap replies in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// Image generates one image from prompt and returns it as a PNG data URL.
func (c *Client) Image(ctx context.Context, prompt string) (string, error) {
	return guard(ctx, c, "image", func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
			Model:          c.imageModel,
			Prompt:         prompt,
			N:              1,
			Size:           c.imageSize,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		if err != nil {
			return "", err
		}
		return firstImage(resp)
	})
}

// namedReader gives the multipart encoder a file name and content type.
type namedReader struct {
	*bytes.Reader
	name string
}

func (r namedReader) Name() string        { return r.name }
func (r namedReader) ContentType() string { return "image/png" }

// EditImage repaints the transparent areas of a PNG according to prompt and
// returns the result as a PNG data URL.
func (c *Client) EditImage(ctx context.Context, png []byte, prompt string) (string, error) {
	return guard(ctx, c, "edit", func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateEditImage(ctx, openai.ImageEditRequest{
			Image:          namedReader{Reader: bytes.NewReader(png), name: "artwork.png"},
			Prompt:         prompt,
			Model:          openai.CreateImageModelDallE2,
			N:              1,
			Size:           c.imageSize,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		if err != nil {
			return "", err
		}
		return firstImage(resp)
	})
}

func firstImage(resp openai.ImageResponse) (string, error) {
	if len(resp.Data) == 0 {
		return "", ErrEmptyResponse
	}
	d := resp.Data[0]
	switch {
	case d.B64JSON != "":
		if _, err := base64.StdEncoding.DecodeString(d.B64JSON); err != nil {
			return "", fmt.Errorf("bad image payload: %w", err)
		}
		return "data:image/png;base64," + d.B64JSON, nil
	case d.URL != "":
		return d.URL, nil
	default:
		return "", ErrEmptyResponse
	}
}
