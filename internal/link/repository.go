package link

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for pairing-store persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByUserID retrieves a user's link row.
	// Returns ErrLinkNotFound if the user has no row.
	GetByUserID(ctx context.Context, userID string) (*Link, error)

	// UserIDByCode resolves a pairing code to the user who generated it.
	// Returns ErrCodeNotFound if no user holds that code.
	UserIDByCode(ctx context.Context, code string) (string, error)

	// UserIDByDevice resolves a device ID to the user it is bound to.
	// Returns ErrLinkNotFound if the device is not bound to anyone.
	UserIDByDevice(ctx context.Context, deviceID string) (string, error)

	// UpsertCode sets the user's pairing code, creating the row if needed.
	// An existing device binding is left untouched; only the code changes.
	UpsertCode(ctx context.Context, userID, code string) error

	// BindDevice binds a device to the user, replacing any previous binding.
	// deviceName may be nil when the device did not report one.
	BindDevice(ctx context.Context, userID, deviceID string, deviceName *string) error

	// UpdateDeviceName refreshes the stored device name for a user.
	UpdateDeviceName(ctx context.Context, userID, deviceName string) error

	// ClearDevice removes the user's device binding (device_id and
	// device_name), leaving the row and its code in place.
	ClearDevice(ctx context.Context, userID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the links
// table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByUserID retrieves a user's link row.
func (r *SQLiteRepository) GetByUserID(ctx context.Context, userID string) (*Link, error) {
	query := `
		SELECT user_id, code, device_id, device_name, created_at, updated_at
		FROM links
		WHERE user_id = ?`

	l, err := scanLink(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("querying link by user: %w", err)
	}
	return l, nil
}

// UserIDByCode resolves a pairing code to a user ID.
func (r *SQLiteRepository) UserIDByCode(ctx context.Context, code string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, "SELECT user_id FROM links WHERE code = ?", code).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrCodeNotFound
		}
		return "", fmt.Errorf("querying link by code: %w", err)
	}
	return userID, nil
}

// UserIDByDevice resolves a device ID to the user it is bound to.
func (r *SQLiteRepository) UserIDByDevice(ctx context.Context, deviceID string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, "SELECT user_id FROM links WHERE device_id = ?", deviceID).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrLinkNotFound
		}
		return "", fmt.Errorf("querying link by device: %w", err)
	}
	return userID, nil
}

// UpsertCode sets the user's pairing code, creating the row if needed.
// Deliberately leaves device_id/device_name alone: generating a new code
// must not unbind an already-paired device.
func (r *SQLiteRepository) UpsertCode(ctx context.Context, userID, code string) error {
	query := `
		INSERT INTO links (user_id, code, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			code = excluded.code,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, userID, code, nowUTC()); err != nil {
		return fmt.Errorf("upserting pairing code: %w", err)
	}
	return nil
}

// BindDevice binds a device (and optional name) to the user.
func (r *SQLiteRepository) BindDevice(ctx context.Context, userID, deviceID string, deviceName *string) error {
	query := `
		UPDATE links
		SET device_id = ?, device_name = ?, updated_at = ?
		WHERE user_id = ?`

	result, err := r.db.ExecContext(ctx, query, deviceID, deviceName, nowUTC(), userID)
	if err != nil {
		return fmt.Errorf("binding device: %w", err)
	}
	return requireRow(result)
}

// UpdateDeviceName refreshes the stored device name for a user.
func (r *SQLiteRepository) UpdateDeviceName(ctx context.Context, userID, deviceName string) error {
	query := `
		UPDATE links
		SET device_name = ?, updated_at = ?
		WHERE user_id = ?`

	result, err := r.db.ExecContext(ctx, query, deviceName, nowUTC(), userID)
	if err != nil {
		return fmt.Errorf("updating device name: %w", err)
	}
	return requireRow(result)
}

// ClearDevice removes the user's device binding.
func (r *SQLiteRepository) ClearDevice(ctx context.Context, userID string) error {
	query := `
		UPDATE links
		SET device_id = NULL, device_name = NULL, updated_at = ?
		WHERE user_id = ?`

	result, err := r.db.ExecContext(ctx, query, nowUTC(), userID)
	if err != nil {
		return fmt.Errorf("clearing device: %w", err)
	}
	return requireRow(result)
}

// scanLink scans a links row from a QueryRow result.
func scanLink(row *sql.Row) (*Link, error) {
	var l Link
	var code, deviceID, deviceName sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&l.UserID, &code, &deviceID, &deviceName, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if code.Valid {
		l.Code = &code.String
	}
	if deviceID.Valid {
		l.DeviceID = &deviceID.String
	}
	if deviceName.Valid {
		l.DeviceName = &deviceName.String
	}

	// Timestamps are stored as RFC3339 text; parse failures leave zero times.
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		l.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		l.UpdatedAt = ts
	}

	return &l, nil
}

// requireRow converts a zero-rows-affected update into ErrLinkNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// nowUTC returns the current time formatted for the updated_at column.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
