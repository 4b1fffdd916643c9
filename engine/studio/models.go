package studio

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/imageutil"
)

// Products maps each sellable product to the scene its mockup is rendered in.
var Products = map[string]string{
	"tee":     "printed on the front of a plain cotton t-shirt laid flat on a wooden table",
	"hoodie":  "printed on the chest of a heavyweight hoodie on a hanger",
	"poster":  "framed as a matte poster hanging on a gallery wall",
	"mug":     "wrapped around a white ceramic coffee mug on a cafe counter",
	"sticker": "as a die-cut vinyl sticker on a laptop lid",
}

const (
	analyzePrompt = `Identify the vehicle in this photo. Reply with one JSON object:
{"year": "1970", "make": "Chevrolet", "model": "Impala", "trim": "SS", "color": {"name": "Cranberry Red", "hex": "#8B1A2B"}}
Use "?" for the year when you cannot tell. Leave trim empty when unsure.`

	referencePrompt = `Describe what makes this particular car recognizable in one sentence:
wheels, body modifications, stance, livery, accessories. Reply with {"details": "..."}.`

	mockupCanvas = 1024
	mockupFill   = 0.6
	maxFetchSize = 20 << 20
	detailsCache = 64
)

// Vision is the structured image-understanding call.
type Vision interface {
	VisionJSON(ctx context.Context, prompt, imageURL string, out any) error
}

// Painter is the image generation and edit calls.
type Painter interface {
	Image(ctx context.Context, prompt string) (string, error)
	EditImage(ctx context.Context, png []byte, prompt string) (string, error)
}

// Models implements Analyzer, generate.Generator and MockupRenderer on top
// of a genai.Client.
type Models struct {
	vision  Vision
	painter Painter
	http    *http.Client
	log     *slog.Logger

	mu      sync.Mutex
	details map[[sha256.Size]byte]string
}

// NewModels creates Models. vision and painter are usually the same
// *genai.Client.
func NewModels(vision Vision, painter Painter, logger *slog.Logger) *Models {
	if logger == nil {
		logger = slog.Default()
	}
	return &Models{
		vision:  vision,
		painter: painter,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger.With("component", "models"),
		details: make(map[[sha256.Size]byte]string),
	}
}

// AnalyzeVehicle asks the vision model for the vehicle's identity.
func (m *Models) AnalyzeVehicle(ctx context.Context, photo string) (domain.VehicleIdentity, error) {
	var v domain.VehicleIdentity
	if err := m.vision.VisionJSON(ctx, analyzePrompt, photo, &v); err != nil {
		return domain.VehicleIdentity{}, fmt.Errorf("studio: analyze vehicle: %w", err)
	}
	v.Year = strings.TrimSpace(v.Year)
	v.Make = strings.TrimSpace(v.Make)
	v.Model = strings.TrimSpace(v.Model)
	v.Trim = strings.TrimSpace(v.Trim)
	if v.Make == "" && v.Model == "" {
		return domain.VehicleIdentity{}, fmt.Errorf("studio: analyze vehicle: %w", domain.ErrInvalidVehicle)
	}
	if v.Year == "" {
		v.Year = "?"
	}
	return v, nil
}

// GenerateStyle renders v in style s. With a reference photo the car's
// distinguishing details are described first and folded into the prompt.
func (m *Models) GenerateStyle(ctx context.Context, v domain.VehicleIdentity, s domain.Style, reference string) (domain.ImageRef, error) {
	details := ""
	if reference != "" {
		details = m.referenceDetails(ctx, reference)
	}
	img, err := m.painter.Image(ctx, StylePrompt(v, s, details))
	if err != nil {
		return "", fmt.Errorf("studio: generate %s: %w", s.ID, err)
	}
	return domain.ImageRef(img), nil
}

// referenceDetails is cached per photo since a batch shares one reference.
// A failed description only weakens the prompt.
func (m *Models) referenceDetails(ctx context.Context, reference string) string {
	key := sha256.Sum256([]byte(reference))
	m.mu.Lock()
	d, ok := m.details[key]
	m.mu.Unlock()
	if ok {
		return d
	}

	var out struct {
		Details string `json:"details"`
	}
	if err := m.vision.VisionJSON(ctx, referencePrompt, reference, &out); err != nil {
		m.log.WarnContext(ctx, "reference description failed", "error", err)
		return ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.details) >= detailsCache {
		clear(m.details)
	}
	m.details[key] = out.Details
	return out.Details
}

// StylePrompt builds the generation prompt for one style.
func StylePrompt(v domain.VehicleIdentity, s domain.Style, details string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s artwork of a ", s.ArtStyle)
	if v.Color.Name != "" {
		b.WriteString(strings.ToLower(v.Color.Name) + " ")
	}
	if v.Year != "" && v.Year != "?" {
		b.WriteString(v.Year + " ")
	}
	b.WriteString(strings.TrimSpace(v.Make + " " + v.Model + " " + v.Trim))
	b.WriteString(", three-quarter front view, the whole car in frame.")
	if details != "" {
		b.WriteString(" " + details)
	}
	if s.Color != "" {
		fmt.Fprintf(&b, " Accent color %s.", s.Color)
	}
	if s.BackgroundColor != "" {
		fmt.Fprintf(&b, " Background %s.", s.BackgroundColor)
	}
	b.WriteString(" No text, no watermark.")
	return b.String()
}

// RenderMockup centres the artwork on a transparent canvas and lets the edit
// model paint the product scene around it.
func (m *Models) RenderMockup(ctx context.Context, image domain.ImageRef, product string) (domain.ImageRef, error) {
	scene, ok := Products[product]
	if !ok {
		return "", fmt.Errorf("studio: render mockup: %w: %q", domain.ErrUnknownProduct, product)
	}
	data, err := m.imageBytes(ctx, string(image))
	if err != nil {
		return "", fmt.Errorf("studio: render mockup: %w", err)
	}
	png, err := imageutil.PadSquarePNG(data, mockupCanvas, mockupFill)
	if err != nil {
		return "", fmt.Errorf("studio: render mockup: %w", err)
	}
	out, err := m.painter.EditImage(ctx, png, "Product photo of this artwork "+scene+". Keep the artwork unchanged.")
	if err != nil {
		return "", fmt.Errorf("studio: render mockup: %w", err)
	}
	return domain.ImageRef(out), nil
}

// imageBytes decodes a data URL or downloads a remote image.
func (m *Models) imageBytes(ctx context.Context, ref string) ([]byte, error) {
	if imageutil.IsDataURL(ref) {
		_, data, err := imageutil.ParseDataURL(ref)
		return data, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
}
