package repo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// result is the part of a neo4j result the store reads.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// runner is the part of a neo4j session the store uses.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Labels, property names and relationship types are interpolated into
// Cypher, so they are restricted to plain identifiers.
var ident = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(kind, s string) error {
	if !ident.MatchString(s) {
		return fmt.Errorf("repo: invalid %s %q", kind, s)
	}
	return nil
}

// Neo4jStore keeps entities of one type as nodes with a single label, keyed
// by an id property.
type Neo4jStore[T any] struct {
	driver     neo4j.DriverWithContext
	database   string
	label      string
	idKey      string
	versionKey string
	toMap      func(T) map[string]any
	fromProps  func(map[string]any) (T, error)
	newSession func(ctx context.Context) runner
}

// Neo4jOption configures a Neo4jStore.
type Neo4jOption[T any] func(*Neo4jStore[T])

// WithIDKey sets the id property name (default "id").
func WithIDKey[T any](key string) Neo4jOption[T] {
	return func(s *Neo4jStore[T]) { s.idKey = key }
}

// WithVersionKey makes Upsert keep a stored node whose key property is
// greater than the incoming one. The property must be an integer in every
// entity's map.
func WithVersionKey[T any](key string) Neo4jOption[T] {
	return func(s *Neo4jStore[T]) { s.versionKey = key }
}

// WithDatabase selects a database other than the server default.
func WithDatabase[T any](name string) Neo4jOption[T] {
	return func(s *Neo4jStore[T]) { s.database = name }
}

// NewNeo4jStore creates a store for nodes labelled label. toMap must include
// the id property.
func NewNeo4jStore[T any](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	fromProps func(map[string]any) (T, error),
	opts ...Neo4jOption[T],
) *Neo4jStore[T] {
	s := &Neo4jStore[T]{
		driver:    driver,
		label:     label,
		idKey:     "id",
		toMap:     toMap,
		fromProps: fromProps,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Store[any] = (*Neo4jStore[any])(nil)

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (s *Neo4jStore[T]) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})}
}

// Upsert merges the node on its id and overwrites its properties. With a
// version key, a node holding a higher version is left untouched.
func (s *Neo4jStore[T]) Upsert(ctx context.Context, entity T) error {
	if err := checkIdent("label", s.label); err != nil {
		return err
	}
	props := s.toMap(entity)
	id, ok := props[s.idKey]
	if !ok {
		return fmt.Errorf("repo: upsert %s: missing %s", s.label, s.idKey)
	}
	params := map[string]any{"id": id, "props": props}
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props", s.label, s.idKey)
	if s.versionKey != "" {
		if err := checkIdent("property", s.versionKey); err != nil {
			return err
		}
		version, ok := props[s.versionKey]
		if !ok {
			return fmt.Errorf("repo: upsert %s: missing %s", s.label, s.versionKey)
		}
		params["version"] = version
		cypher = fmt.Sprintf(
			"MERGE (n:%s {%s: $id}) WITH n WHERE coalesce(n.%s, -1) <= $version SET n += $props",
			s.label, s.idKey, s.versionKey,
		)
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return fmt.Errorf("repo: upsert %s: %w", s.label, err)
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("repo: upsert %s: %w", s.label, err)
	}
	return nil
}

// Get loads one node by id.
func (s *Neo4jStore[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	items, err := s.query(ctx, s.idKey, id, 1)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, fmt.Errorf("repo: %s %s: %w", s.label, id, ErrNotFound)
	}
	return items[0], nil
}

// ListBy returns every node whose prop equals value.
func (s *Neo4jStore[T]) ListBy(ctx context.Context, prop string, value any) ([]T, error) {
	return s.query(ctx, prop, value, 0)
}

func (s *Neo4jStore[T]) query(ctx context.Context, prop string, value any, limit int) ([]T, error) {
	if err := checkIdent("label", s.label); err != nil {
		return nil, err
	}
	if err := checkIdent("property", prop); err != nil {
		return nil, err
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $v}) RETURN n", s.label, prop)
	if limit > 0 {
		cypher += fmt.Sprintf(" LIMIT %d", limit)
	}
	res, err := sess.Run(ctx, cypher, map[string]any{"v": value})
	if err != nil {
		return nil, fmt.Errorf("repo: query %s: %w", s.label, err)
	}

	var items []T
	for res.Next(ctx) {
		raw, ok := res.Record().Get("n")
		if !ok {
			continue
		}
		node, ok := raw.(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("repo: query %s: unexpected %T", s.label, raw)
		}
		item, err := s.fromProps(node.Props)
		if err != nil {
			return nil, fmt.Errorf("repo: decode %s: %w", s.label, err)
		}
		items = append(items, item)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("repo: query %s: %w", s.label, err)
	}
	return items, nil
}

// Link merges a relationship of type rel between two existing nodes. Both
// nodes are matched on the store's id property.
func (s *Neo4jStore[T]) Link(ctx context.Context, from Ref, rel string, to Ref) error {
	for _, c := range [][2]string{{"label", from.Label}, {"label", to.Label}, {"relationship", rel}} {
		if err := checkIdent(c[0], c[1]); err != nil {
			return err
		}
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		"MATCH (a:%s {%s: $from}), (b:%s {%s: $to}) MERGE (a)-[:%s]->(b)",
		from.Label, s.idKey, to.Label, s.idKey, rel,
	)
	res, err := sess.Run(ctx, cypher, map[string]any{"from": from.ID, "to": to.ID})
	if err != nil {
		return fmt.Errorf("repo: link %s-%s->%s: %w", from.Label, rel, to.Label, err)
	}
	return res.Err()
}
