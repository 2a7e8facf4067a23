package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/marcboeker/go-duckdb"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/joeblew999/plat-patch/internal/patch"
)

// Table is where the patch source is imported.
const Table = "patches"

// ErrNoGeometry is returned when the patches table has no GEOMETRY column.
var ErrNoGeometry = errors.New("patches table has no geometry column")

// ImportPatches replaces the patches table with the contents of a GeoJSON
// or GeoParquet file and returns the row count.
func ImportPatches(ctx context.Context, conn *sql.DB, path string) (int64, error) {
	var reader string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".geoparquet":
		reader = "read_parquet(" + quoteLiteral(path) + ")"
	default:
		reader = "ST_Read(" + quoteLiteral(path) + ")"
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", quoteIdent(Table), reader)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return 0, fmt.Errorf("import %s: %w", filepath.Base(path), err)
	}

	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(Table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patches: %w", err)
	}
	return n, nil
}

// Loader returns a function that reads every row of the patches table as a
// feature. Its signature matches service.PatchLoader.
func Loader(conn *sql.DB) func(ctx context.Context, s patch.Schema) ([]patch.Feature, error) {
	return func(ctx context.Context, s patch.Schema) ([]patch.Feature, error) {
		return LoadPatches(ctx, conn, s)
	}
}

// LoadPatches decodes the patches table. The geometry travels as WKB.
func LoadPatches(ctx context.Context, conn *sql.DB, s patch.Schema) ([]patch.Feature, error) {
	geomCol, err := geometryColumn(ctx, conn)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * EXCLUDE (%[1]s), ST_AsWKB(%[1]s) AS __wkb FROM %[2]s",
		quoteIdent(geomCol), quoteIdent(Table))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query patches: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var features []patch.Feature
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan patch: %w", err)
		}

		props := make(map[string]any, len(columns)-1)
		var geom orb.Geometry
		for i, col := range columns {
			if col == "__wkb" {
				if b, ok := values[i].([]byte); ok {
					if g, err := wkb.Unmarshal(b); err == nil {
						geom = g
					}
				}
				continue
			}
			props[col] = scalar(values[i])
		}
		features = append(features, patch.FromProperties(props, geom, s))
	}
	return features, rows.Err()
}

// scalar turns DuckDB DECIMAL and HUGEINT values into float64 so they
// decode like any other number.
func scalar(v any) any {
	switch n := v.(type) {
	case duckdb.Decimal:
		if n.Value == nil {
			return nil
		}
		return n.Float64()
	case *big.Int:
		if n == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f
	}
	return v
}

func geometryColumn(ctx context.Context, conn *sql.DB) (string, error) {
	rows, err := conn.QueryContext(ctx, "DESCRIBE "+quoteIdent(Table))
	if err != nil {
		return "", fmt.Errorf("describe patches: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		// column_name, column_type, ...
		name, _ := values[0].(string)
		typ, _ := values[1].(string)
		if strings.EqualFold(typ, "GEOMETRY") {
			return name, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return "", ErrNoGeometry
}

// TierSummary counts distinct patches, sums area and averages numeric ENN
// per tier straight from the patches table.
func TierSummary(ctx context.Context, conn *sql.DB, s patch.Schema) ([]patch.TierStat, error) {
	tier := quoteIdent(s.Attr(patch.FieldTier))
	query := fmt.Sprintf(`
		SELECT CAST(%[1]s AS VARCHAR) AS tier,
		       count(DISTINCT %[2]s),
		       coalesce(sum(TRY_CAST(%[3]s AS DOUBLE)), 0),
		       avg(TRY_CAST(%[4]s AS DOUBLE))
		FROM %[5]s
		WHERE %[2]s IS NOT NULL
		GROUP BY 1
		ORDER BY 1`,
		tier,
		quoteIdent(s.Attr(patch.FieldID)),
		quoteIdent(s.Attr(patch.FieldArea)),
		quoteIdent(s.Attr(patch.FieldENN)),
		quoteIdent(Table),
	)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tier summary: %w", err)
	}
	defer rows.Close()

	stats := []patch.TierStat{}
	for rows.Next() {
		var (
			name sql.NullString
			st   patch.TierStat
			enn  sql.NullFloat64
		)
		if err := rows.Scan(&name, &st.Count, &st.TotalArea, &enn); err != nil {
			return nil, fmt.Errorf("scan tier summary: %w", err)
		}
		st.Tier = name.String
		if enn.Valid {
			v := enn.Float64
			st.MeanENN = &v
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// OrderByUniverse reorders stats to follow the legend; unknown tiers go last.
func OrderByUniverse(stats []patch.TierStat, universe []string) []patch.TierStat {
	rank := make(map[string]int, len(universe))
	for i, t := range universe {
		rank[t] = i
	}
	out := make([]patch.TierStat, 0, len(stats))
	byTier := make(map[string]patch.TierStat, len(stats))
	for _, st := range stats {
		byTier[st.Tier] = st
	}
	for _, t := range universe {
		if st, ok := byTier[t]; ok {
			out = append(out, st)
		} else {
			out = append(out, patch.TierStat{Tier: t})
		}
	}
	for _, st := range stats {
		if _, ok := rank[st.Tier]; !ok {
			out = append(out, st)
		}
	}
	return out
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
