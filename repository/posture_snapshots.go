package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-pulse/models"
)

// DefaultSnapshotLimit is used when a caller asks for a non-positive limit
const DefaultSnapshotLimit = 50

const snapshotColumns = `id, score, label, breadth, dispersion, vol_overlay, sources, taken_at`

// CreatePostureSnapshot records a posture reading
func (r *Repository) CreatePostureSnapshot(ctx context.Context, snap *models.PostureSnapshot) error {
	sources := snap.Sources
	if sources == nil {
		sources = map[string]string{}
	}

	timer := r.metrics.NewTimer()
	_, err := r.db.Exec(ctx, `
		INSERT INTO posture_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snap.ID, snap.Score, string(snap.Label),
		snap.Components.Breadth, snap.Components.Dispersion, snap.Components.VolOverlay,
		sources, snap.TakenAt)
	r.observe(timer, "insert", "posture_snapshots", err)

	if err != nil {
		return fmt.Errorf("failed to create posture snapshot: %w", err)
	}
	return nil
}

// GetPostureSnapshots returns the most recent readings, newest first
func (r *Repository) GetPostureSnapshots(ctx context.Context, limit int) ([]models.PostureSnapshot, error) {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}

	timer := r.metrics.NewTimer()
	rows, err := r.db.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM posture_snapshots
		ORDER BY taken_at DESC
		LIMIT $1
	`, limit)
	r.observe(timer, "select", "posture_snapshots", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query posture snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []models.PostureSnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posture snapshots: %w", err)
	}

	return snaps, nil
}

// GetLatestPostureSnapshot returns the newest reading or ErrNotFound
func (r *Repository) GetLatestPostureSnapshot(ctx context.Context) (*models.PostureSnapshot, error) {
	timer := r.metrics.NewTimer()
	snap, err := scanSnapshot(r.db.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM posture_snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`))
	if errors.Is(err, pgx.ErrNoRows) {
		r.observe(timer, "select", "posture_snapshots", nil)
		return nil, ErrNotFound
	}
	r.observe(timer, "select", "posture_snapshots", err)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func scanSnapshot(row pgx.Row) (*models.PostureSnapshot, error) {
	var snap models.PostureSnapshot
	var label string
	err := row.Scan(&snap.ID, &snap.Score, &label,
		&snap.Components.Breadth, &snap.Components.Dispersion, &snap.Components.VolOverlay,
		&snap.Sources, &snap.TakenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan posture snapshot: %w", err)
	}
	snap.Label = models.PostureLabel(label)
	return &snap, nil
}
