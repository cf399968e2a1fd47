package registry

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSQLRegistryFindPartner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("FROM registry_partners\nWHERE ref = $1\nORDER BY id ASC\nLIMIT 1")).
		WithArgs("1234567").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ref", "name"}).AddRow(3, "1234567", "First Dupont"))

	reg := &SQLRegistry{DB: db, Driver: DriverPGX}
	p, err := reg.FindPartnerByRef(context.Background(), "1234567")
	if err != nil {
		t.Fatalf("FindPartnerByRef: %v", err)
	}
	if p.ID != 3 || p.Name != "First Dupont" {
		t.Fatalf("unexpected partner %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLRegistryChildFallsBackToLocalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cols := []string{"id", "code", "local_id", "name"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE code = ?")).
		WithArgs("ET-LOCAL-1").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE local_id = ?")).
		WithArgs("ET-LOCAL-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(42, "ET8001", "ET-LOCAL-1", nil))

	reg := &SQLRegistry{DB: db, Driver: DriverMySQL}
	c, err := reg.FindChildByCode(context.Background(), "ET-LOCAL-1")
	if err != nil {
		t.Fatalf("FindChildByCode: %v", err)
	}
	if c.ID != 42 || c.Code != "ET8001" {
		t.Fatalf("unexpected child %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestSQLRegistryMissAndFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM registry_partners").
		WithArgs("999").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ref", "name"}))
	mock.ExpectQuery("FROM registry_children").
		WithArgs("X").
		WillReturnError(errors.New("connection reset"))

	reg := &SQLRegistry{DB: db, Driver: DriverPGX}
	if _, err := reg.FindPartnerByRef(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = reg.FindChildByCode(context.Background(), "X")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a driver failure, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	r := &SQLRegistry{Driver: DriverMySQL}
	got := r.rebind("SELECT 1 WHERE a = $1 AND b = $12 AND c = '$'")
	want := "SELECT 1 WHERE a = ? AND b = ? AND c = '$'"
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}
	pg := &SQLRegistry{Driver: DriverPGX}
	if pg.rebind("a = $1") != "a = $1" {
		t.Fatalf("pgx queries must be left untouched")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "sqlite3", "file::memory:"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
