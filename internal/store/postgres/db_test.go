package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"counseling/backend/internal/store"
)

type rowsResult int64

func (r rowsResult) RowsAffected() (int64, error) {
	return int64(r), nil
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: store.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", sql.ErrNoRows), want: store.ErrNotFound},
		{name: "exclusion violation", err: &pgconn.PgError{Code: "23P01"}, want: store.ErrConflict},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: store.ErrConflict},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: store.ErrSerialization},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: store.ErrSerialization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if mapError(nil) != nil {
		t.Fatalf("mapError(nil) should be nil")
	}
	other := &pgconn.PgError{Code: "42P01"}
	if got := mapError(other); got != other {
		t.Fatalf("mapError(42P01) = %v, want the original error", got)
	}
}

func TestMapError_KeepsDriverDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_double_booking"}
	var got *pgconn.PgError
	if !errors.As(mapError(pgErr), &got) {
		t.Fatalf("expected the pg error to stay reachable")
	}
	if got.ConstraintName != "appointments_no_double_booking" {
		t.Fatalf("constraint = %q", got.ConstraintName)
	}
}

func TestAffectedOne(t *testing.T) {
	if err := affectedOne(rowsResult(1), nil); err != nil {
		t.Fatalf("affectedOne(1) error: %v", err)
	}
	if err := affectedOne(rowsResult(0), nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("affectedOne(0) = %v, want %v", err, store.ErrNotFound)
	}
	boom := errors.New("boom")
	if err := affectedOne(nil, boom); !errors.Is(err, boom) {
		t.Fatalf("affectedOne(err) = %v, want %v", err, boom)
	}
}
