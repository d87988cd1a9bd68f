package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/google/uuid"
)

type ObjectFilter struct {
	ManagerID *string
}

type ObjectRepository interface {
	FindByID(ctx context.Context, id string) (models.Object, error)
	FindAll(ctx context.Context, filter ObjectFilter) ([]models.Object, error)
	Create(ctx context.Context, object models.Object) (models.Object, error)
	Update(ctx context.Context, object models.Object) error
	Delete(ctx context.Context, id string) error
}

type SQLiteObjectRepository struct {
	database *sql.DB
}

func NewObjectRepository(database *sql.DB) *SQLiteObjectRepository {
	return &SQLiteObjectRepository{database: database}
}

const objectColumns = `id, name, address, manager_id, timezone,
	require_photo, require_comment, created_at, updated_at`

func (repository *SQLiteObjectRepository) FindByID(ctx context.Context, id string) (models.Object, error) {
	var object models.Object
	err := repository.database.QueryRowContext(ctx,
		"SELECT "+objectColumns+" FROM objects WHERE id = ?", id,
	).Scan(
		&object.ID, &object.Name, &object.Address, &object.ManagerID, &object.Timezone,
		&object.RequirePhoto, &object.RequireComment, &object.CreatedAt, &object.UpdatedAt,
	)
	if err != nil {
		return models.Object{}, fmt.Errorf("finding object by id: %w", err)
	}
	return object, nil
}

func (repository *SQLiteObjectRepository) FindAll(ctx context.Context, filter ObjectFilter) ([]models.Object, error) {
	query := "SELECT " + objectColumns + " FROM objects WHERE 1=1"
	var args []interface{}

	if filter.ManagerID != nil {
		query += " AND manager_id = ?"
		args = append(args, *filter.ManagerID)
	}
	query += " ORDER BY name"

	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding objects: %w", err)
	}
	defer rows.Close()

	var objects []models.Object
	for rows.Next() {
		var object models.Object
		if err := rows.Scan(
			&object.ID, &object.Name, &object.Address, &object.ManagerID, &object.Timezone,
			&object.RequirePhoto, &object.RequireComment, &object.CreatedAt, &object.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning object: %w", err)
		}
		objects = append(objects, object)
	}
	return objects, rows.Err()
}

func (repository *SQLiteObjectRepository) Create(ctx context.Context, object models.Object) (models.Object, error) {
	if object.ID == "" {
		object.ID = uuid.New().String()
	}
	now := time.Now()
	object.CreatedAt = now
	object.UpdatedAt = now

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO objects (id, name, address, manager_id, timezone,
			require_photo, require_comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		object.ID, object.Name, object.Address, object.ManagerID, object.Timezone,
		object.RequirePhoto, object.RequireComment, object.CreatedAt, object.UpdatedAt,
	)
	if err != nil {
		return models.Object{}, fmt.Errorf("creating object: %w", err)
	}
	return object, nil
}

func (repository *SQLiteObjectRepository) Update(ctx context.Context, object models.Object) error {
	object.UpdatedAt = time.Now()
	_, err := repository.database.ExecContext(ctx,
		`UPDATE objects SET name = ?, address = ?, manager_id = ?, timezone = ?,
			require_photo = ?, require_comment = ?, updated_at = ?
		WHERE id = ?`,
		object.Name, object.Address, object.ManagerID, object.Timezone,
		object.RequirePhoto, object.RequireComment, object.UpdatedAt, object.ID,
	)
	if err != nil {
		return fmt.Errorf("updating object: %w", err)
	}
	return nil
}

func (repository *SQLiteObjectRepository) Delete(ctx context.Context, id string) error {
	_, err := repository.database.ExecContext(ctx, "DELETE FROM objects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}
