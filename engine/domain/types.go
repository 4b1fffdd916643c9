// Package domain defines the core types shared by the carart engine: vehicle
// identities, generated style state, car and event sessions, mockups and orders.
package domain

import "time"

// Color is the dominant paint color reported for a vehicle.
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// VehicleIdentity is the year/make/model snapshot a vehicle is classified on.
// It is replaced as a whole when a vendor edits it.
type VehicleIdentity struct {
	Year  string `json:"year"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Trim  string `json:"trim,omitempty"`
	Color Color  `json:"color"`
}

// PlaceholderIdentity is used when vehicle analysis fails.
var PlaceholderIdentity = VehicleIdentity{Year: "?", Make: "Unknown", Model: "Vehicle"}

// String renders the identity as "<year> <make> <model>".
func (v VehicleIdentity) String() string {
	return v.Year + " " + v.Make + " " + v.Model
}

// Style is one entry of the fixed art style catalog.
type Style struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	Emoji           string `json:"emoji"`
	ArtStyle        string `json:"art_style"`
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
}

// Category groups vehicles that share a style ranking.
type Category string

const (
	CategoryClassic      Category = "pre1980-classic"
	CategoryEighties     Category = "80s-90s"
	CategoryTruck        Category = "truck"
	CategoryJDM          Category = "jdm"
	CategoryLowrider     Category = "lowrider"
	CategoryModernSports Category = "modern-sports"
	CategoryDefault      Category = "default"
)

// Categories lists every category in rule-evaluation order, default last.
var Categories = []Category{
	CategoryLowrider, CategoryJDM, CategoryTruck, CategoryModernSports,
	CategoryClassic, CategoryEighties, CategoryDefault,
}

// StyleStatus is the generation state of one style for one car.
type StyleStatus string

const (
	StatusIdle       StyleStatus = "idle"
	StatusGenerating StyleStatus = "generating"
	StatusDone       StyleStatus = "done"
	StatusError      StyleStatus = "error"
)

// Terminal reports whether the status is done or error.
func (s StyleStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ImageRef points at a generated image: a remote URL or a data URL.
type ImageRef string

// StyleState tracks one style of a car. Image is set only when done and
// Error only when the generation failed.
type StyleState struct {
	StyleID string      `json:"style_id"`
	Status  StyleStatus `json:"status"`
	Image   ImageRef    `json:"image,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Mockup is a product render built from a generated style image.
type Mockup struct {
	ID        string    `json:"id"`
	StyleID   string    `json:"style_id"`
	Product   string    `json:"product"`
	Image     ImageRef  `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderStatus is the lifecycle state of a merchandise order.
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

// Order is a merchandise order taken for one car.
type Order struct {
	ID         string      `json:"id"`
	StyleID    string      `json:"style_id"`
	Product    string      `json:"product"`
	Size       string      `json:"size,omitempty"`
	Quantity   int         `json:"quantity"`
	PriceCents int64       `json:"price_cents"`
	Status     OrderStatus `json:"status"`
	PaymentRef string      `json:"payment_ref,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// CarSession is everything captured for one photographed vehicle.
type CarSession struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Photo     string           `json:"photo,omitempty"`
	Thumbnail string           `json:"thumbnail,omitempty"`
	Vehicle   *VehicleIdentity `json:"vehicle,omitempty"`
	Styles    []StyleState     `json:"styles"`
	Mockups   []Mockup         `json:"mockups,omitempty"`
	Orders    []Order          `json:"orders,omitempty"`
}

// Style returns the state for styleID and whether it exists.
func (c CarSession) Style(styleID string) (StyleState, bool) {
	for _, s := range c.Styles {
		if s.StyleID == styleID {
			return s, true
		}
	}
	return StyleState{}, false
}

// Clone returns a deep copy of the car.
func (c CarSession) Clone() CarSession {
	out := c
	if c.Vehicle != nil {
		v := *c.Vehicle
		out.Vehicle = &v
	}
	out.Styles = append([]StyleState(nil), c.Styles...)
	out.Mockups = append([]Mockup(nil), c.Mockups...)
	out.Orders = append([]Order(nil), c.Orders...)
	return out
}

// DateLayout is the calendar-day key of an event session.
const DateLayout = "2006-01-02"

// EventSession holds the cars photographed on one calendar day. Version
// grows by one with every change and orders mirror writes; UpdatedAt is the
// time of that change.
type EventSession struct {
	Date      string       `json:"date"`
	Version   int64        `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
	Cars      []CarSession `json:"cars"`
}

// NewEventSession starts an empty session for the day of now.
func NewEventSession(now time.Time) EventSession {
	return EventSession{Date: now.Format(DateLayout), Cars: []CarSession{}}
}

// Current reports whether the session belongs to the day of now.
func (e EventSession) Current(now time.Time) bool {
	return e.Date == now.Format(DateLayout)
}

// Car returns a pointer into Cars for id, or nil.
func (e *EventSession) Car(id string) *CarSession {
	for i := range e.Cars {
		if e.Cars[i].ID == id {
			return &e.Cars[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the session.
func (e EventSession) Clone() EventSession {
	out := EventSession{Date: e.Date, Version: e.Version, UpdatedAt: e.UpdatedAt, Cars: make([]CarSession, len(e.Cars))}
	for i, c := range e.Cars {
		out.Cars[i] = c.Clone()
	}
	return out
}
