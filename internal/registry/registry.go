// Package registry reads sample records from the LIMS database.
//
// The registry is read-only. Postgres (the production LIMS) is reached
// through the pgx database/sql driver; MySQL/MariaDB mirrors through
// go-sql-driver/mysql.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL/MariaDB mirrors
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Supported drivers.
const (
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

// ErrNotFound is returned when no sample has the requested container.
var ErrNotFound = errors.New("sample not found")

// Sample is one patched cell as LIMS records it.
type Sample struct {
	Container  string `json:"container"`
	CellName   string `json:"cell_name"`
	SpecimenID string `json:"specimen_id"`
	Genotype   string `json:"genotype"`
	Species    string `json:"species"`
	Project    string `json:"project"`
	Structure  string `json:"structure"`
}

// Registry queries LIMS.
type Registry struct {
	db          *sql.DB
	placeholder func(n int) string
}

// Open connects to the LIMS database. driver is DriverPostgres or
// DriverMySQL.
func Open(ctx context.Context, driver, dsn string) (*Registry, error) {
	if dsn == "" {
		return nil, errors.New("registry DSN is empty")
	}
	switch driver {
	case DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported registry driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry connection: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping registry: %w", err)
	}
	return New(db, driver), nil
}

// New wraps an open database. Postgres gets $n placeholders; every other
// driver gets ?.
func New(db *sql.DB, driver string) *Registry {
	r := &Registry{db: db, placeholder: func(int) string { return "?" }}
	if driver == DriverPostgres {
		r.placeholder = func(n int) string { return fmt.Sprintf("$%d", n) }
	}
	return r
}

// Close closes the connection pool.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

const sampleSelect = `
SELECT DISTINCT
	cell.patched_cell_container,
	cell.name,
	COALESCE(d.external_donor_name, ''),
	COALESCE(d.full_genotype, ''),
	COALESCE(org.name, ''),
	COALESCE(proj.code, ''),
	COALESCE(structures.acronym, '')
FROM specimens cell
INNER JOIN donors d ON d.id = cell.donor_id
LEFT JOIN organisms org ON d.organism_id = org.id
LEFT JOIN projects proj ON cell.project_id = proj.id
LEFT JOIN structures ON cell.structure_id = structures.id
`

// SamplesByDateRange returns samples whose container date (YYMMDD) lies
// in [from, to], ordered by container.
func (r *Registry) SamplesByDateRange(ctx context.Context, from, to string) ([]Sample, error) {
	if !isYYMMDD(from) || !isYYMMDD(to) {
		return nil, fmt.Errorf("date range %q..%q is not YYMMDD", from, to)
	}
	query := sampleSelect + fmt.Sprintf(
		"WHERE SUBSTR(cell.patched_cell_container, 6, 6) BETWEEN %s AND %s\nORDER BY cell.patched_cell_container",
		r.placeholder(1), r.placeholder(2),
	)
	return r.query(ctx, query, from, to)
}

// SampleByContainer returns the sample for one container.
func (r *Registry) SampleByContainer(ctx context.Context, container string) (Sample, error) {
	query := sampleSelect + "WHERE cell.patched_cell_container = " + r.placeholder(1)
	samples, err := r.query(ctx, query, container)
	if err != nil {
		return Sample{}, err
	}
	if len(samples) == 0 {
		return Sample{}, fmt.Errorf("%w: %s", ErrNotFound, container)
	}
	return samples[0], nil
}

func (r *Registry) query(ctx context.Context, query string, args ...any) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer rows.Close()

	out := []Sample{}
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.Container, &s.CellName, &s.SpecimenID, &s.Genotype, &s.Species, &s.Project, &s.Structure); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

func isYYMMDD(s string) bool {
	if len(s) != 6 {
		return false
	}
	return strings.Trim(s, "0123456789") == ""
}
