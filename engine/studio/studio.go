// Package studio runs a vendor's capture flow: identify the photographed
// vehicle, rank the style catalog for it, generate artwork in batches and
// keep the vendor's session up to date as results arrive.
package studio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinstripe-labs/carart/engine/catalog"
	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/engine/generate"
	"github.com/pinstripe-labs/carart/engine/session"
	"github.com/pinstripe-labs/carart/pkg/fn"
	"github.com/pinstripe-labs/carart/pkg/imageutil"
)

const (
	DefaultInitialBatch = 4
	DefaultMoreBatch    = 4
)

// Analyzer identifies the vehicle in a photo.
type Analyzer interface {
	AnalyzeVehicle(ctx context.Context, photo string) (domain.VehicleIdentity, error)
}

// MockupRenderer places a generated artwork on a product.
type MockupRenderer interface {
	RenderMockup(ctx context.Context, image domain.ImageRef, product string) (domain.ImageRef, error)
}

// Batcher is satisfied by *generate.Orchestrator.
type Batcher interface {
	GenerateBatch(ctx context.Context, v domain.VehicleIdentity, styles []domain.Style, reference string, cb generate.Callbacks) map[string]fn.Result[domain.ImageRef]
}

// Options configures a Service.
type Options struct {
	InitialBatch int
	MoreBatch    int
	Logger       *slog.Logger
}

// Service coordinates analysis, ranking, generation and session updates.
type Service struct {
	tracker  *session.Tracker
	analyzer Analyzer
	batcher  Batcher
	mockups  MockupRenderer
	initial  int
	more     int
	log      *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// New creates a Service.
func New(tracker *session.Tracker, analyzer Analyzer, batcher Batcher, mockups MockupRenderer, opts Options) *Service {
	if opts.InitialBatch <= 0 {
		opts.InitialBatch = DefaultInitialBatch
	}
	if opts.MoreBatch <= 0 {
		opts.MoreBatch = DefaultMoreBatch
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		tracker:  tracker,
		analyzer: analyzer,
		batcher:  batcher,
		mockups:  mockups,
		initial:  opts.InitialBatch,
		more:     opts.MoreBatch,
		log:      opts.Logger.With("component", "studio"),
		now:      time.Now,
	}
}

// Started is the outcome of StartCar.
type Started struct {
	Car      domain.CarSession `json:"car"`
	Category domain.Category   `json:"category"`
	Queued   []string          `json:"queued"`
	Warning  string            `json:"warning,omitempty"`
}

// Session returns the user's session for today.
func (s *Service) Session(ctx context.Context, userID string) domain.EventSession {
	return s.tracker.Snapshot(ctx, userID)
}

// StartCar adds a car for a freshly captured photo and starts the initial
// batch with the photo as reference. A failed analysis does not stop the
// flow: the placeholder identity is used and a warning returned.
func (s *Service) StartCar(ctx context.Context, userID, photo string) (Started, error) {
	var out Started
	v, err := s.analyzer.AnalyzeVehicle(ctx, photo)
	if err != nil {
		s.log.WarnContext(ctx, "vehicle analysis failed, using placeholder", "error", err)
		v = domain.PlaceholderIdentity
		out.Warning = "We couldn't identify this vehicle. Edit the details to improve the styles."
	}

	thumb, err := imageutil.ThumbnailDataURL(photo)
	if err != nil {
		s.log.WarnContext(ctx, "thumbnail failed", "error", err)
	}

	ranked := catalog.Rank(v)
	batch := ranked[:min(s.initial, len(ranked))]
	car := domain.CarSession{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		Photo:     photo,
		Thumbnail: thumb,
		Vehicle:   &v,
		Styles:    catalog.IdleStates(),
	}
	markGenerating(&car, batch)

	if _, err := s.tracker.Update(ctx, userID, func(ev *domain.EventSession) error {
		ev.Cars = append(ev.Cars, car)
		return nil
	}); err != nil {
		return Started{}, fmt.Errorf("studio: start car: %w", err)
	}

	out.Car = car.Clone()
	out.Category = catalog.Classify(v)
	out.Queued = styleIDs(batch)
	s.log.InfoContext(ctx, "car started", "car", car.ID, "vehicle", v.String(), "category", out.Category)

	// The photo is only needed as the reference for this batch.
	s.dispatch(ctx, userID, car.ID, v, batch, photo, func(ctx context.Context) {
		if _, err := s.tracker.UpdateCar(ctx, userID, car.ID, func(c *domain.CarSession) error {
			c.Photo = ""
			return nil
		}); err != nil {
			s.log.DebugContext(ctx, "photo not released", "car", car.ID, "error", err)
		}
	})
	return out, nil
}

// GenerateMore starts the next ranked styles that have not been generated
// yet and returns their ids; none are left when the result is empty.
func (s *Service) GenerateMore(ctx context.Context, userID, carID string) ([]string, error) {
	var (
		v     domain.VehicleIdentity
		batch []domain.Style
	)
	_, err := s.tracker.UpdateCar(ctx, userID, carID, func(c *domain.CarSession) error {
		v = identityOf(c)
		batch = batch[:0]
		for _, st := range catalog.Rank(v) {
			if len(batch) == s.more {
				break
			}
			if state, ok := c.Style(st.ID); ok && state.Status == domain.StatusIdle {
				batch = append(batch, st)
			}
		}
		markGenerating(c, batch)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("studio: generate more: %w", err)
	}
	if len(batch) > 0 {
		s.dispatch(ctx, userID, carID, v, batch, "", nil)
	}
	return styleIDs(batch), nil
}

// GenerateSelected starts the chosen styles in the given order. Styles that
// are done or failed are regenerated. The whole request is rejected when any
// id is unknown or still generating.
func (s *Service) GenerateSelected(ctx context.Context, userID, carID string, ids []string) ([]string, error) {
	var batch []domain.Style
	for _, id := range ids {
		st, ok := catalog.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("studio: generate selected: %w: %q", domain.ErrUnknownStyle, id)
		}
		if !slices.ContainsFunc(batch, func(b domain.Style) bool { return b.ID == id }) {
			batch = append(batch, st)
		}
	}

	var v domain.VehicleIdentity
	_, err := s.tracker.UpdateCar(ctx, userID, carID, func(c *domain.CarSession) error {
		for _, st := range batch {
			if state, _ := c.Style(st.ID); state.Status == domain.StatusGenerating {
				return fmt.Errorf("%w: %q", domain.ErrAlreadyGenerating, st.ID)
			}
		}
		v = identityOf(c)
		markGenerating(c, batch)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("studio: generate selected: %w", err)
	}
	if len(batch) > 0 {
		s.dispatch(ctx, userID, carID, v, batch, "", nil)
	}
	return styleIDs(batch), nil
}

// UpdateVehicle replaces the car's identity with a vendor-edited one.
func (s *Service) UpdateVehicle(ctx context.Context, userID, carID string, v domain.VehicleIdentity) (domain.CarSession, error) {
	if err := domain.ValidateIdentity(v); err != nil {
		return domain.CarSession{}, fmt.Errorf("studio: update vehicle: %w", err)
	}
	car, err := s.tracker.UpdateCar(ctx, userID, carID, func(c *domain.CarSession) error {
		c.Vehicle = &v
		return nil
	})
	if err != nil {
		return domain.CarSession{}, fmt.Errorf("studio: update vehicle: %w", err)
	}
	return car, nil
}

// CreateMockup renders a finished style onto a product and stores the
// result with the car.
func (s *Service) CreateMockup(ctx context.Context, userID, carID, styleID, product string) (domain.Mockup, error) {
	if _, ok := catalog.Lookup(styleID); !ok {
		return domain.Mockup{}, fmt.Errorf("studio: create mockup: %w: %q", domain.ErrUnknownStyle, styleID)
	}
	if _, ok := Products[product]; !ok {
		return domain.Mockup{}, fmt.Errorf("studio: create mockup: %w: %q", domain.ErrUnknownProduct, product)
	}
	ev := s.tracker.Snapshot(ctx, userID)
	car := ev.Car(carID)
	if car == nil {
		return domain.Mockup{}, fmt.Errorf("studio: create mockup: %w", domain.ErrCarNotFound)
	}
	state, _ := car.Style(styleID)
	if state.Status != domain.StatusDone || state.Image == "" {
		return domain.Mockup{}, fmt.Errorf("studio: create mockup: %w: %q", domain.ErrStyleNotReady, styleID)
	}

	img, err := s.mockups.RenderMockup(ctx, state.Image, product)
	if err != nil {
		return domain.Mockup{}, fmt.Errorf("studio: create mockup: %w", err)
	}
	m := domain.Mockup{
		ID:        uuid.NewString(),
		StyleID:   styleID,
		Product:   product,
		Image:     img,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.tracker.UpdateCar(ctx, userID, carID, func(c *domain.CarSession) error {
		c.Mockups = append(c.Mockups, m)
		return nil
	}); err != nil {
		return domain.Mockup{}, fmt.Errorf("studio: create mockup: %w", err)
	}
	return m, nil
}

// AddOrder records a merchandise order against a car. Payment is captured
// elsewhere; PaymentRef links to it when present.
func (s *Service) AddOrder(ctx context.Context, userID, carID string, o domain.Order) (domain.Order, error) {
	if err := domain.ValidateOrder(o); err != nil {
		return domain.Order{}, fmt.Errorf("studio: add order: %w", err)
	}
	if _, ok := catalog.Lookup(o.StyleID); !ok {
		return domain.Order{}, fmt.Errorf("studio: add order: %w: %q", domain.ErrUnknownStyle, o.StyleID)
	}
	if _, ok := Products[o.Product]; !ok {
		return domain.Order{}, fmt.Errorf("studio: add order: %w: %q", domain.ErrUnknownProduct, o.Product)
	}
	o.ID = uuid.NewString()
	o.CreatedAt = s.now().UTC()
	if o.Status == "" {
		o.Status = domain.OrderPending
		if o.PaymentRef != "" {
			o.Status = domain.OrderPaid
		}
	}
	if _, err := s.tracker.UpdateCar(ctx, userID, carID, func(c *domain.CarSession) error {
		c.Orders = append(c.Orders, o)
		return nil
	}); err != nil {
		return domain.Order{}, fmt.Errorf("studio: add order: %w", err)
	}
	return o, nil
}

// Wait blocks until every running batch settled or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs a batch in the background. Results land in the session as
// each call settles; after runs once the whole batch has settled.
func (s *Service) dispatch(ctx context.Context, userID, carID string, v domain.VehicleIdentity, batch []domain.Style, reference string, after func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.batcher.GenerateBatch(ctx, v, batch, reference, generate.Callbacks{
			OnComplete: func(styleID string, image domain.ImageRef) {
				s.settle(ctx, userID, carID, domain.StyleState{StyleID: styleID, Status: domain.StatusDone, Image: image})
			},
			OnError: func(styleID, message string) {
				s.settle(ctx, userID, carID, domain.StyleState{StyleID: styleID, Status: domain.StatusError, Error: message})
			},
		})
		if after != nil {
			after(ctx)
		}
	}()
}

// settle writes one finished style back. The car may be gone when the day
// rolled over mid-batch; the result is dropped then.
func (s *Service) settle(ctx context.Context, userID, carID string, state domain.StyleState) {
	_, err := s.tracker.UpdateCar(ctx, userID, carID, func(c *domain.CarSession) error {
		for i := range c.Styles {
			if c.Styles[i].StyleID == state.StyleID {
				c.Styles[i] = state
				return nil
			}
		}
		return domain.ErrUnknownStyle
	})
	if err != nil {
		s.log.WarnContext(ctx, "dropping generation result", "car", carID, "style", state.StyleID, "error", err)
	}
}

func markGenerating(c *domain.CarSession, batch []domain.Style) {
	for _, st := range batch {
		for i := range c.Styles {
			if c.Styles[i].StyleID == st.ID {
				c.Styles[i] = domain.StyleState{StyleID: st.ID, Status: domain.StatusGenerating}
			}
		}
	}
}

func identityOf(c *domain.CarSession) domain.VehicleIdentity {
	if c.Vehicle == nil {
		return domain.PlaceholderIdentity
	}
	return *c.Vehicle
}

func styleIDs(styles []domain.Style) []string {
	out := make([]string, len(styles))
	for i, st := range styles {
		out[i] = st.ID
	}
	return out
}
