package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FunctionalZoneItem is one scenario functional zone, clipped to the
// project polygon at bootstrap time.
type FunctionalZoneItem struct {
	ID         int64           `json:"functional_zone_id"`
	TypeID     int64           `json:"functional_zone_type_id"`
	TypeName   string          `json:"functional_zone_type_name"`
	Geometry   json.RawMessage `json:"geometry"`
	Year       *int            `json:"year"`
	Source     *string         `json:"source"`
	Properties json.RawMessage `json:"properties"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListFunctionalZones returns the functional zones copied into a scenario.
func (r *Reader) ListFunctionalZones(ctx context.Context, scenarioID int64) ([]FunctionalZoneItem, error) {
	if _, err := r.scenarioProject(ctx, scenarioID); err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT fz.functional_zone_id, fz.functional_zone_type_id, fzt.name,
		        ST_AsGeoJSON(fz.geometry)::jsonb, fz.year, fz.source, fz.properties, fz.created_at
		   FROM projects_functional_zones fz
		   JOIN functional_zone_types_dict fzt
		     ON fzt.functional_zone_type_id = fz.functional_zone_type_id
		  WHERE fz.scenario_id = $1
		  ORDER BY fz.functional_zone_id`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("listing functional zones: %w", err)
	}
	defer rows.Close()

	var out []FunctionalZoneItem
	for rows.Next() {
		var z FunctionalZoneItem
		if err := rows.Scan(&z.ID, &z.TypeID, &z.TypeName,
			&z.Geometry, &z.Year, &z.Source, &z.Properties, &z.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning functional zone: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}
