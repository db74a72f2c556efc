package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/example/companion-matching/internal/models"
)

const intentColumns = `id, user_id, source_address, source_lng, source_lat, dest_address, dest_lng, dest_lat, travel_mode, travel_time, is_active, created_at, updated_at`

// pq's code for unique_violation
const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Insert(ctx context.Context, in *models.TravelIntent) error {
	srcLng, srcLat := nullCoord(in.Source.Coordinates)
	dstLng, dstLat := nullCoord(in.Destination.Coordinates)
	_, err := p.db.ExecContext(ctx, `INSERT INTO travel_intents(`+intentColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		in.ID, in.UserID, in.Source.Address, srcLng, srcLat, in.Destination.Address, dstLng, dstLat,
		string(in.Mode), in.TravelTime, in.Active, in.CreatedAt, in.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.Invalid("id", "travel intent already exists")
	}
	if err != nil {
		return fmt.Errorf("insert travel intent: %w", err)
	}
	return nil
}

func (p *PostgresStore) FindByID(ctx context.Context, id string) (*models.TravelIntent, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM travel_intents WHERE id = $1`, id)
	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "travel intent", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find travel intent %s: %w", id, err)
	}
	return in, nil
}

func (p *PostgresStore) Find(ctx context.Context, f IntentFilter) ([]models.TravelIntent, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Mode != "" {
		add("travel_mode = $%d", string(f.Mode))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.ExcludeUserID != "" {
		add("user_id <> $%d", f.ExcludeUserID)
	}
	if !f.TravelFrom.IsZero() {
		add("travel_time >= $%d", f.TravelFrom)
	}
	if !f.TravelTo.IsZero() {
		add("travel_time <= $%d", f.TravelTo)
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}

	q := `SELECT ` + intentColumns + ` FROM travel_intents`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY travel_time, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find travel intents: %w", err)
	}
	defer rows.Close()
	var out []models.TravelIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan travel intent: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIntent(s scanner) (*models.TravelIntent, error) {
	var (
		in               models.TravelIntent
		mode             string
		srcLng, srcLat   sql.NullFloat64
		dstLng, dstLat   sql.NullFloat64
		srcAddr, dstAddr sql.NullString
	)
	if err := s.Scan(&in.ID, &in.UserID, &srcAddr, &srcLng, &srcLat, &dstAddr, &dstLng, &dstLat,
		&mode, &in.TravelTime, &in.Active, &in.CreatedAt, &in.UpdatedAt); err != nil {
		return nil, err
	}
	in.Mode = models.TravelMode(mode)
	in.Source = models.Place{Address: srcAddr.String, Coordinates: coordOf(srcLng, srcLat)}
	in.Destination = models.Place{Address: dstAddr.String, Coordinates: coordOf(dstLng, dstLat)}
	return &in, nil
}

func nullCoord(c *models.Coord) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lng, Valid: true}, sql.NullFloat64{Float64: c.Lat, Valid: true}
}

func coordOf(lng, lat sql.NullFloat64) *models.Coord {
	if !lng.Valid || !lat.Valid {
		return nil
	}
	return &models.Coord{Lng: lng.Float64, Lat: lat.Float64}
}
