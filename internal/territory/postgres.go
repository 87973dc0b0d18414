package territory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/onnwee/urbanscape/internal/db"
)

// PostgresRepository implements Repository over the territories_data table.
type PostgresRepository struct {
	q db.Querier
}

// NewPostgresRepository creates a Postgres-backed Repository.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

const territoryColumns = `territory_id, parent_id, name, level, is_city, ST_AsBinary(geometry)`

// GetByID retrieves a territory by id, or nil when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Territory, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+territoryColumns+` FROM territories_data WHERE territory_id = $1`, id)
	t, err := scanTerritory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying territory %d: %w", id, err)
	}
	return t, nil
}

// ChildrenOf returns the ids of all direct children of the given ids.
func (r *PostgresRepository) ChildrenOf(ctx context.Context, ids []int64) ([]int64, error) {
	return r.queryIDs(ctx,
		`SELECT territory_id FROM territories_data WHERE parent_id = ANY($1) ORDER BY territory_id`, ids)
}

// ParentsOf returns the ids of the direct parents of the given ids.
func (r *PostgresRepository) ParentsOf(ctx context.Context, ids []int64) ([]int64, error) {
	return r.queryIDs(ctx,
		`SELECT DISTINCT parent_id FROM territories_data
		 WHERE territory_id = ANY($1) AND parent_id IS NOT NULL ORDER BY parent_id`, ids)
}

// GetMany retrieves full rows for the given ids, sorted by id.
func (r *PostgresRepository) GetMany(ctx context.Context, ids []int64) ([]Territory, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+territoryColumns+` FROM territories_data
		 WHERE territory_id = ANY($1) ORDER BY territory_id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying territories: %w", err)
	}
	defer rows.Close()

	var out []Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning territory: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) queryIDs(ctx context.Context, query string, ids []int64) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying territory ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning territory id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerritory(row rowScanner) (*Territory, error) {
	var t Territory
	var parentID sql.NullInt64
	var geom []byte
	if err := row.Scan(&t.ID, &parentID, &t.Name, &t.Level, &t.IsCity, &geom); err != nil {
		return nil, err
	}
	if parentID.Valid {
		t.ParentID = &parentID.Int64
	}
	if len(geom) > 0 {
		g, err := wkb.Unmarshal(geom)
		if err != nil {
			return nil, fmt.Errorf("decoding territory geometry: %w", err)
		}
		t.Geometry = g
	}
	return &t, nil
}
