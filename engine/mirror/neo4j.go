package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/repo"
)

// Node labels and relationship types of the graph mirror.
const (
	labelEvent = "MirrorEvent"
	labelCar   = "MirrorCar"
	labelStyle = "MirrorStyle"
	labelOrder = "MirrorOrder"

	relHasCar   = "HAS_CAR"
	relHasStyle = "HAS_STYLE"
	relHasOrder = "HAS_ORDER"

	propVersion = "version"
)

// graphStore is what the graph backend needs from repo.Neo4jStore.
type graphStore[T any] interface {
	repo.Store[T]
	Link(ctx context.Context, from repo.Ref, rel string, to repo.Ref) error
}

// Neo4j mirrors sessions as a small graph:
// (MirrorEvent)-[:HAS_CAR]->(MirrorCar)-[:HAS_STYLE|HAS_ORDER]->(...).
type Neo4j struct {
	events graphStore[EventRow]
	cars   graphStore[CarRow]
	styles graphStore[StyleRow]
	orders graphStore[OrderRow]
}

var _ Backend = (*Neo4j)(nil)

// NewNeo4j creates a graph backend on driver. database may be empty.
func NewNeo4j(driver neo4j.DriverWithContext, database string) *Neo4j {
	return &Neo4j{
		events: repo.NewNeo4jStore(driver, labelEvent, eventProps, eventFromProps, repo.WithDatabase[EventRow](database), repo.WithVersionKey[EventRow](propVersion)),
		cars:   repo.NewNeo4jStore(driver, labelCar, carProps, carFromProps, repo.WithDatabase[CarRow](database), repo.WithVersionKey[CarRow](propVersion)),
		styles: repo.NewNeo4jStore(driver, labelStyle, styleProps, styleFromProps, repo.WithDatabase[StyleRow](database), repo.WithVersionKey[StyleRow](propVersion)),
		orders: repo.NewNeo4jStore(driver, labelOrder, orderProps, orderFromProps, repo.WithDatabase[OrderRow](database), repo.WithVersionKey[OrderRow](propVersion)),
	}
}

func (n *Neo4j) UpsertEvent(ctx context.Context, row EventRow) error {
	return n.events.Upsert(ctx, row)
}

func (n *Neo4j) UpsertCar(ctx context.Context, row CarRow) error {
	if err := n.cars.Upsert(ctx, row); err != nil {
		return err
	}
	return n.cars.Link(ctx, repo.Ref{Label: labelEvent, ID: row.EventID}, relHasCar, repo.Ref{Label: labelCar, ID: row.ID})
}

func (n *Neo4j) UpsertStyle(ctx context.Context, row StyleRow) error {
	if err := n.styles.Upsert(ctx, row); err != nil {
		return err
	}
	return n.styles.Link(ctx, repo.Ref{Label: labelCar, ID: row.CarRowID}, relHasStyle, repo.Ref{Label: labelStyle, ID: row.ID})
}

func (n *Neo4j) UpsertOrder(ctx context.Context, row OrderRow) error {
	if err := n.orders.Upsert(ctx, row); err != nil {
		return err
	}
	return n.orders.Link(ctx, repo.Ref{Label: labelCar, ID: row.CarRowID}, relHasOrder, repo.Ref{Label: labelOrder, ID: row.ID})
}

func (n *Neo4j) LoadEvent(ctx context.Context, userID, date string) (*domain.EventSession, error) {
	ev, err := n.events.Get(ctx, EventID(userID, date))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mirror: load event: %w", err)
	}
	cars, err := n.cars.ListBy(ctx, "event_id", ev.ID)
	if err != nil {
		return nil, fmt.Errorf("mirror: load cars: %w", err)
	}
	var styles []StyleRow
	var orders []OrderRow
	for _, c := range cars {
		ss, err := n.styles.ListBy(ctx, "car_row_id", c.ID)
		if err != nil {
			return nil, fmt.Errorf("mirror: load styles: %w", err)
		}
		styles = append(styles, ss...)
		ords, err := n.orders.ListBy(ctx, "car_row_id", c.ID)
		if err != nil {
			return nil, fmt.Errorf("mirror: load orders: %w", err)
		}
		orders = append(orders, ords...)
	}
	return assemble(ev, cars, styles, orders), nil
}

// Property codecs. The driver returns integers as int64 and temporal values
// as time.Time.

func str(p map[string]any, k string) string {
	s, _ := p[k].(string)
	return s
}

func num(p map[string]any, k string) int64 {
	switch v := p[k].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func ts(p map[string]any, k string) time.Time {
	switch v := p[k].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

func requireID(p map[string]any) error {
	if str(p, "id") == "" {
		return errors.New("node without id")
	}
	return nil
}

func eventProps(r EventRow) map[string]any {
	return map[string]any{"id": r.ID, "user_id": r.UserID, "date": r.Date, propVersion: r.Version, "updated_at": r.UpdatedAt}
}

func eventFromProps(p map[string]any) (EventRow, error) {
	return EventRow{
		ID: str(p, "id"), UserID: str(p, "user_id"), Date: str(p, "date"),
		Version: num(p, propVersion), UpdatedAt: ts(p, "updated_at"),
	}, requireID(p)
}

func carProps(r CarRow) map[string]any {
	vehicle := ""
	if r.Vehicle != nil {
		b, _ := json.Marshal(r.Vehicle)
		vehicle = string(b)
	}
	return map[string]any{
		"id": r.ID, "event_id": r.EventID, "car_id": r.CarID, propVersion: r.Version, "position": int64(r.Position),
		"created_at": r.CreatedAt, "thumbnail": r.Thumbnail, "vehicle": vehicle,
	}
}

func carFromProps(p map[string]any) (CarRow, error) {
	c := CarRow{
		ID: str(p, "id"), EventID: str(p, "event_id"), CarID: str(p, "car_id"), Version: num(p, propVersion),
		Position: int(num(p, "position")), CreatedAt: ts(p, "created_at"), Thumbnail: str(p, "thumbnail"),
	}
	if v := str(p, "vehicle"); v != "" {
		c.Vehicle = new(domain.VehicleIdentity)
		if err := json.Unmarshal([]byte(v), c.Vehicle); err != nil {
			return c, fmt.Errorf("vehicle: %w", err)
		}
	}
	return c, requireID(p)
}

func styleProps(r StyleRow) map[string]any {
	return map[string]any{
		"id": r.ID, "car_row_id": r.CarRowID, propVersion: r.Version, "position": int64(r.Position), "style_id": r.State.StyleID,
		"status": string(r.State.Status), "image": string(r.State.Image), "error": r.State.Error,
	}
}

func styleFromProps(p map[string]any) (StyleRow, error) {
	return StyleRow{
		ID: str(p, "id"), CarRowID: str(p, "car_row_id"), Version: num(p, propVersion), Position: int(num(p, "position")),
		State: domain.StyleState{
			StyleID: str(p, "style_id"),
			Status:  domain.StyleStatus(str(p, "status")),
			Image:   domain.ImageRef(str(p, "image")),
			Error:   str(p, "error"),
		},
	}, requireID(p)
}

func orderProps(r OrderRow) map[string]any {
	o := r.Order
	return map[string]any{
		"id": r.ID, "car_row_id": r.CarRowID, propVersion: r.Version, "order_id": o.ID, "style_id": o.StyleID, "product": o.Product,
		"size": o.Size, "quantity": int64(o.Quantity), "price_cents": o.PriceCents, "status": string(o.Status),
		"payment_ref": o.PaymentRef, "created_at": o.CreatedAt,
	}
}

func orderFromProps(p map[string]any) (OrderRow, error) {
	return OrderRow{
		ID: str(p, "id"), CarRowID: str(p, "car_row_id"), Version: num(p, propVersion),
		Order: domain.Order{
			ID: str(p, "order_id"), StyleID: str(p, "style_id"), Product: str(p, "product"), Size: str(p, "size"),
			Quantity: int(num(p, "quantity")), PriceCents: num(p, "price_cents"), Status: domain.OrderStatus(str(p, "status")),
			PaymentRef: str(p, "payment_ref"), CreatedAt: ts(p, "created_at"),
		},
	}, requireID(p)
}
