package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pinstripe-labs/carart/engine/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS mirror_events (
	id         UUID PRIMARY KEY,
	user_id    TEXT NOT NULL,
	event_date TEXT NOT NULL,
	version    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, event_date)
);
CREATE TABLE IF NOT EXISTS mirror_cars (
	id         UUID PRIMARY KEY,
	event_id   UUID NOT NULL REFERENCES mirror_events(id) ON DELETE CASCADE,
	car_id     TEXT NOT NULL,
	version    BIGINT NOT NULL DEFAULT 0,
	position   INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	thumbnail  TEXT NOT NULL DEFAULT '',
	vehicle    JSONB
);
CREATE TABLE IF NOT EXISTS mirror_styles (
	id         UUID PRIMARY KEY,
	car_row_id UUID NOT NULL REFERENCES mirror_cars(id) ON DELETE CASCADE,
	version    BIGINT NOT NULL DEFAULT 0,
	position   INT NOT NULL,
	style_id   TEXT NOT NULL,
	status     TEXT NOT NULL,
	image      TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS mirror_orders (
	id          UUID PRIMARY KEY,
	car_row_id  UUID NOT NULL REFERENCES mirror_cars(id) ON DELETE CASCADE,
	order_id    TEXT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	style_id    TEXT NOT NULL,
	product     TEXT NOT NULL,
	size        TEXT NOT NULL DEFAULT '',
	quantity    INT NOT NULL,
	price_cents BIGINT NOT NULL,
	status      TEXT NOT NULL,
	payment_ref TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
ALTER TABLE mirror_events ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
ALTER TABLE mirror_cars ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
ALTER TABLE mirror_styles ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
ALTER TABLE mirror_orders ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS mirror_cars_event_idx ON mirror_cars (event_id);
CREATE INDEX IF NOT EXISTS mirror_styles_car_idx ON mirror_styles (car_row_id);
CREATE INDEX IF NOT EXISTS mirror_orders_car_idx ON mirror_orders (car_row_id);
`

// Postgres mirrors sessions into four tables through the pgx driver.
type Postgres struct {
	db *sql.DB
}

var _ Backend = (*Postgres)(nil)

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mirror: ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the mirror tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("mirror: migrate: %w", err)
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) UpsertEvent(ctx context.Context, row EventRow) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO mirror_events (id, user_id, event_date, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE mirror_events.version <= EXCLUDED.version`,
		row.ID, row.UserID, row.Date, row.Version, row.UpdatedAt)
	return err
}

func (p *Postgres) UpsertCar(ctx context.Context, row CarRow) error {
	var vehicle []byte
	if row.Vehicle != nil {
		var err error
		if vehicle, err = json.Marshal(row.Vehicle); err != nil {
			return err
		}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO mirror_cars (id, event_id, car_id, version, position, created_at, thumbnail, vehicle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			position = EXCLUDED.position,
			thumbnail = EXCLUDED.thumbnail,
			vehicle = EXCLUDED.vehicle
		WHERE mirror_cars.version <= EXCLUDED.version`,
		row.ID, row.EventID, row.CarID, row.Version, row.Position, row.CreatedAt, row.Thumbnail, vehicle)
	return err
}

func (p *Postgres) UpsertStyle(ctx context.Context, row StyleRow) error {
	s := row.State
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO mirror_styles (id, car_row_id, version, position, style_id, status, image, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			image = EXCLUDED.image,
			error = EXCLUDED.error
		WHERE mirror_styles.version <= EXCLUDED.version`,
		row.ID, row.CarRowID, row.Version, row.Position, s.StyleID, string(s.Status), string(s.Image), s.Error)
	return err
}

func (p *Postgres) UpsertOrder(ctx context.Context, row OrderRow) error {
	o := row.Order
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO mirror_orders (id, car_row_id, order_id, version, style_id, product, size, quantity, price_cents, status, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			quantity = EXCLUDED.quantity,
			price_cents = EXCLUDED.price_cents,
			status = EXCLUDED.status,
			payment_ref = EXCLUDED.payment_ref
		WHERE mirror_orders.version <= EXCLUDED.version`,
		row.ID, row.CarRowID, o.ID, row.Version, o.StyleID, o.Product, o.Size, o.Quantity, o.PriceCents, string(o.Status), o.PaymentRef, o.CreatedAt)
	return err
}

func (p *Postgres) LoadEvent(ctx context.Context, userID, date string) (*domain.EventSession, error) {
	var ev EventRow
	err := p.db.QueryRowContext(ctx,
		`SELECT id::text, user_id, event_date, version, updated_at FROM mirror_events WHERE user_id = $1 AND event_date = $2`,
		userID, date,
	).Scan(&ev.ID, &ev.UserID, &ev.Date, &ev.Version, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mirror: load event: %w", err)
	}

	cars, err := p.loadCars(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	styles, err := p.loadStyles(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	orders, err := p.loadOrders(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	return assemble(ev, cars, styles, orders), nil
}

func (p *Postgres) loadCars(ctx context.Context, eventID string) ([]CarRow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, event_id::text, car_id, position, created_at, thumbnail, vehicle
		FROM mirror_cars WHERE event_id = $1 ORDER BY position`, eventID)
	if err != nil {
		return nil, fmt.Errorf("mirror: load cars: %w", err)
	}
	defer rows.Close()

	var out []CarRow
	for rows.Next() {
		var c CarRow
		var vehicle []byte
		if err := rows.Scan(&c.ID, &c.EventID, &c.CarID, &c.Position, &c.CreatedAt, &c.Thumbnail, &vehicle); err != nil {
			return nil, fmt.Errorf("mirror: scan car: %w", err)
		}
		if len(vehicle) > 0 {
			c.Vehicle = new(domain.VehicleIdentity)
			if err := json.Unmarshal(vehicle, c.Vehicle); err != nil {
				return nil, fmt.Errorf("mirror: decode vehicle: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) loadStyles(ctx context.Context, eventID string) ([]StyleRow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT s.id::text, s.car_row_id::text, s.position, s.style_id, s.status, s.image, s.error
		FROM mirror_styles s JOIN mirror_cars c ON c.id = s.car_row_id
		WHERE c.event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("mirror: load styles: %w", err)
	}
	defer rows.Close()

	var out []StyleRow
	for rows.Next() {
		var s StyleRow
		var status, image string
		if err := rows.Scan(&s.ID, &s.CarRowID, &s.Position, &s.State.StyleID, &status, &image, &s.State.Error); err != nil {
			return nil, fmt.Errorf("mirror: scan style: %w", err)
		}
		s.State.Status = domain.StyleStatus(status)
		s.State.Image = domain.ImageRef(image)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) loadOrders(ctx context.Context, eventID string) ([]OrderRow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT o.id::text, o.car_row_id::text, o.order_id, o.style_id, o.product, o.size,
		       o.quantity, o.price_cents, o.status, o.payment_ref, o.created_at
		FROM mirror_orders o JOIN mirror_cars c ON c.id = o.car_row_id
		WHERE c.event_id = $1 ORDER BY o.created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("mirror: load orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		var r OrderRow
		var status string
		o := &r.Order
		if err := rows.Scan(&r.ID, &r.CarRowID, &o.ID, &o.StyleID, &o.Product, &o.Size,
			&o.Quantity, &o.PriceCents, &status, &o.PaymentRef, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("mirror: scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
