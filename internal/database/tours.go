package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

func (db *DB) CreateTour(ctx context.Context, tour *models.Tour) error {
	dates := make([]string, 0, len(tour.AvailableDates))
	for _, d := range tour.AvailableDates {
		dates = append(dates, d.Format(models.DateLayout))
	}
	rawDates, err := json.Marshal(dates)
	if err != nil {
		return fmt.Errorf("failed to encode available dates: %w", err)
	}

	query := `INSERT INTO tours (
	            id, title, description, location, price, max_group_size,
	            available_dates, operator_id, is_active, approval_status,
	            created_at, updated_at
	        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err = db.ExecContext(ctx, query,
		tour.ID,
		tour.Title,
		tour.Description,
		tour.Location,
		tour.Price,
		tour.MaxGroupSize,
		string(rawDates),
		tour.OperatorID,
		tour.IsActive,
		tour.ApprovalStatus,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create tour: %w", err)
	}

	tour.CreatedAt = now
	tour.UpdatedAt = now
	return nil
}

func (db *DB) GetTour(ctx context.Context, id string) (*models.Tour, error) {
	var tour models.Tour
	var rawDates string
	query := `SELECT id, title, description, location, price, max_group_size,
	                 available_dates, operator_id, is_active, approval_status,
	                 created_at, updated_at
	          FROM tours WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&tour.ID, &tour.Title, &tour.Description, &tour.Location, &tour.Price,
		&tour.MaxGroupSize, &rawDates, &tour.OperatorID, &tour.IsActive,
		&tour.ApprovalStatus, &tour.CreatedAt, &tour.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}

	var dates []string
	if err := json.Unmarshal([]byte(rawDates), &dates); err != nil {
		return nil, fmt.Errorf("failed to decode available dates: %w", err)
	}
	for _, d := range dates {
		parsed, err := time.Parse(models.DateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("failed to parse available date %s: %w", d, err)
		}
		tour.AvailableDates = append(tour.AvailableDates, parsed)
	}

	return &tour, nil
}

// UpdateTourPrice changes the catalog price. Existing bookings keep their
// snapshot; the column is only read at request time.
func (db *DB) UpdateTourPrice(ctx context.Context, id string, price int64) error {
	query := `UPDATE tours SET price = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, price, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update tour price: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) GetOperatorTours(ctx context.Context, operatorID string) ([]*models.Tour, error) {
	query := `SELECT id FROM tours WHERE operator_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operator tours: %w", err)
	}
	defer rows.Close()

	var tours []*models.Tour
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tour id: %w", err)
		}
		tour, err := db.GetTour(ctx, id)
		if err != nil {
			return nil, err
		}
		tours = append(tours, tour)
	}
	return tours, rows.Err()
}
