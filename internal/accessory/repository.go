package accessory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/c4-bridge/internal/device"
)

// Record is a registered accessory as persisted between restarts.
type Record struct {
	UUID      string         `json:"uuid"`
	Context   device.Context `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Repository persists registered accessories.
type Repository interface {
	// List returns every registered accessory, oldest first.
	List(ctx context.Context) ([]Record, error)

	// Get returns one accessory. Returns ErrNotFound if it is not registered.
	Get(ctx context.Context, uuid string) (*Record, error)

	// Save registers an accessory or refreshes an existing registration.
	Save(ctx context.Context, rec *Record) error

	// Delete unregisters an accessory. Returns ErrNotFound if it is not registered.
	Delete(ctx context.Context, uuid string) error
}

// SQLiteRepository implements Repository on the accessories table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectAccessory = `
	SELECT uuid, name, room, proxy_id, driver_file_name, created_at, updated_at
	FROM accessories`

// List returns every registered accessory, oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, selectAccessory+` ORDER BY created_at, uuid`)
	if err != nil {
		return nil, fmt.Errorf("querying accessories: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accessories: %w", err)
	}
	return out, nil
}

// Get returns one accessory by UUID.
func (r *SQLiteRepository) Get(ctx context.Context, uuid string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, selectAccessory+` WHERE uuid = ?`, uuid)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Save inserts the accessory, or updates its context if the UUID exists.
func (r *SQLiteRepository) Save(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accessories (uuid, name, room, proxy_id, driver_file_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			name = excluded.name,
			room = excluded.room,
			proxy_id = excluded.proxy_id,
			driver_file_name = excluded.driver_file_name,
			updated_at = excluded.updated_at`,
		rec.UUID,
		rec.Context.Name,
		rec.Context.Room,
		rec.Context.ProxyID,
		rec.Context.DriverFileName,
		rec.CreatedAt.Format(timeLayout),
		rec.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving accessory %s: %w", rec.UUID, err)
	}
	return nil
}

// Delete removes an accessory by UUID.
func (r *SQLiteRepository) Delete(ctx context.Context, uuid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accessories WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("deleting accessory %s: %w", uuid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                  Record
		createdAt, updatedAt string
	)
	err := row.Scan(
		&rec.UUID,
		&rec.Context.Name,
		&rec.Context.Room,
		&rec.Context.ProxyID,
		&rec.Context.DriverFileName,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning accessory: %w", err)
	}

	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}
