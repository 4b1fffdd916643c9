package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstripe-labs/carart/pkg/resilience"
)

type fakeAPI struct {
	chat     openai.ChatCompletionResponse
	image    openai.ImageResponse
	err      error
	chatReqs []openai.ChatCompletionRequest
	imgReqs  []openai.ImageRequest
	editBody []byte
	editName string
}

func (f *fakeAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatReqs = append(f.chatReqs, req)
	return f.chat, f.err
}

func (f *fakeAPI) CreateImage(_ context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.imgReqs = append(f.imgReqs, req)
	return f.image, f.err
}

func (f *fakeAPI) CreateEditImage(_ context.Context, req openai.ImageEditRequest) (openai.ImageResponse, error) {
	f.editBody, _ = io.ReadAll(req.Image)
	if n, ok := req.Image.(interface{ Name() string }); ok {
		f.editName = n.Name()
	}
	return f.image, f.err
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: content},
	}}}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := New(Config{APIKey: "sk-test", BaseURL: "http://localhost:1234/v1"})
	require.NoError(t, err)
	assert.Equal(t, openai.GPT4o, c.visionModel)
}

func TestVisionJSON(t *testing.T) {
	f := &fakeAPI{chat: reply("```json\n{\"make\":\"Chevrolet\"}\n```")}
	c := newClient(f, Config{})

	var out struct{ Make string }
	require.NoError(t, c.VisionJSON(context.Background(), "identify", "data:image/jpeg;base64,AAAA", &out))
	assert.Equal(t, "Chevrolet", out.Make)

	req := f.chatReqs[0]
	require.Len(t, req.Messages[0].MultiContent, 2)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", req.Messages[0].MultiContent[1].ImageURL.URL)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
}

func TestVisionJSONErrors(t *testing.T) {
	var out map[string]any

	c := newClient(&fakeAPI{chat: openai.ChatCompletionResponse{}}, Config{})
	assert.ErrorIs(t, c.VisionJSON(context.Background(), "p", "u", &out), ErrEmptyResponse)

	c = newClient(&fakeAPI{chat: reply("not json")}, Config{})
	assert.ErrorContains(t, c.VisionJSON(context.Background(), "p", "u", &out), "decode reply")
}

func TestImageReturnsDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("png"))
	f := &fakeAPI{image: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{B64JSON: payload}}}}
	c := newClient(f, Config{ImageModel: openai.CreateImageModelDallE3})

	got, err := c.Image(context.Background(), "a synthwave car")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+payload, got)
	assert.Equal(t, openai.CreateImageModelDallE3, f.imgReqs[0].Model)
	assert.Equal(t, openai.CreateImageResponseFormatB64JSON, f.imgReqs[0].ResponseFormat)
}

func TestImageURLFallback(t *testing.T) {
	f := &fakeAPI{image: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{URL: "https://img/x.png"}}}}
	got, err := newClient(f, Config{}).Image(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "https://img/x.png", got)

	_, err = newClient(&fakeAPI{}, Config{}).Image(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestEditImageSendsNamedPNG(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("out"))
	f := &fakeAPI{image: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{B64JSON: payload}}}}
	got, err := newClient(f, Config{}).EditImage(context.Background(), []byte("in"), "on a t-shirt")
	require.NoError(t, err)
	assert.Equal(t, []byte("in"), f.editBody)
	assert.Equal(t, "artwork.png", f.editName)
	assert.Contains(t, got, payload)
}

func TestBreakerOpensOnRepeatedFailure(t *testing.T) {
	boom := errors.New("503")
	f := &fakeAPI{err: boom}
	c := newClient(f, Config{Breaker: resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})})

	for i := 0; i < 2; i++ {
		_, err := c.Image(context.Background(), "p")
		assert.ErrorIs(t, err, boom)
	}
	_, err := c.Image(context.Background(), "p")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, f.imgReqs, 2)
}

func TestLimiterHonoursContext(t *testing.T) {
	lim := resilience.NewLimiter(resilience.LimiterOpts{Rate: 0.001, Burst: 1})
	f := &fakeAPI{image: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{URL: "u"}}}}
	c := newClient(f, Config{Limiter: lim})

	_, err := c.Image(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Image(ctx, "p")
	assert.ErrorIs(t, err, resilience.ErrRateLimited)
}
