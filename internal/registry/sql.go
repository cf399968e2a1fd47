package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // register mysql for external ERP registries
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
)

// Supported drivers.
const (
	DriverPGX   = "pgx"
	DriverMySQL = "mysql"
)

// SQLRegistry reads partners and children from registry tables, either the
// local Postgres copy or an external ERP database.
type SQLRegistry struct {
	DB     *sql.DB
	Driver string
}

// Open connects to a registry database and verifies connectivity.
func Open(ctx context.Context, driver, dsn string) (*SQLRegistry, error) {
	switch driver {
	case DriverPGX, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported registry driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("registry dsn is empty")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping registry: %w", err)
	}
	return &SQLRegistry{DB: db, Driver: driver}, nil
}

// FindPartnerByRef returns the lowest-id partner whose ref equals ref.
func (r *SQLRegistry) FindPartnerByRef(ctx context.Context, ref string) (Partner, error) {
	query := r.rebind(`
SELECT id, ref, name
FROM registry_partners
WHERE ref = $1
ORDER BY id ASC
LIMIT 1`)
	var p Partner
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, query, ref).Scan(&p.ID, &p.Ref, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Partner{}, ErrNotFound
		}
		return Partner{}, fmt.Errorf("find partner ref=%s: %w", ref, err)
	}
	p.Name = name.String
	return p, nil
}

// FindChildByCode matches on code first, then on local_id.
func (r *SQLRegistry) FindChildByCode(ctx context.Context, code string) (Child, error) {
	for _, column := range []string{"code", "local_id"} {
		c, err := r.findChild(ctx, column, code)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return c, err
	}
	return Child{}, ErrNotFound
}

func (r *SQLRegistry) findChild(ctx context.Context, column, value string) (Child, error) {
	query := r.rebind(`
SELECT id, code, local_id, name
FROM registry_children
WHERE ` + column + ` = $1
ORDER BY id ASC
LIMIT 1`)
	var c Child
	var localID, name sql.NullString
	err := r.DB.QueryRowContext(ctx, query, value).Scan(&c.ID, &c.Code, &localID, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Child{}, ErrNotFound
		}
		return Child{}, fmt.Errorf("find child %s=%s: %w", column, value, err)
	}
	c.LocalID = localID.String
	c.Name = name.String
	return c, nil
}

// rebind converts $n placeholders to ? for mysql.
func (r *SQLRegistry) rebind(query string) string {
	if r.Driver != DriverMySQL {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			b.WriteByte('?')
			i = j - 1
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var _ Registry = (*SQLRegistry)(nil)
