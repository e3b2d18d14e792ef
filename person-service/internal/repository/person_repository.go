package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/tbc/persons/shared/models"
	"github.com/tbc/persons/shared/uow"
)

const personColumns = `id, first_name, last_name, personal_number, birth_date, gender, city_id,
	image_path, created_at, updated_at`

// PersonWriteRepository handles all state-mutating operations for persons.
// Every call runs on the transaction carried by ctx when there is one.
type PersonWriteRepository struct {
	uow *uow.UnitOfWork
}

func NewPersonWriteRepository(u *uow.UnitOfWork) *PersonWriteRepository {
	return &PersonWriteRepository{uow: u}
}

func (r *PersonWriteRepository) Create(ctx context.Context, p *models.Person) error {
	query := `
		INSERT INTO persons (id, first_name, last_name, personal_number, birth_date, gender, city_id,
			image_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.uow.Executor(ctx).ExecContext(ctx, query,
		p.ID, p.FirstName, p.LastName, p.PersonalNumber, p.BirthDate, string(p.Gender), p.CityID,
		nullString(p.ImagePath), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapError("create person", err)
	}
	return nil
}

// GetForUpdate fetches a person and locks its row until the surrounding
// transaction ends.
func (r *PersonWriteRepository) GetForUpdate(ctx context.Context, id string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	p, err := scanPerson(r.uow.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

func (r *PersonWriteRepository) Update(ctx context.Context, p *models.Person) error {
	query := `
		UPDATE persons
		SET first_name = $2, last_name = $3, personal_number = $4, birth_date = $5,
			gender = $6, city_id = $7, updated_at = $8
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.uow.Executor(ctx).ExecContext(ctx, query,
		p.ID, p.FirstName, p.LastName, p.PersonalNumber, p.BirthDate, string(p.Gender), p.CityID, p.UpdatedAt,
	)
	if err != nil {
		return mapError("update person", err)
	}
	return requireRow(result)
}

func (r *PersonWriteRepository) SetImage(ctx context.Context, id, imagePath string, updatedAt time.Time) error {
	query := `UPDATE persons SET image_path = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.uow.Executor(ctx).ExecContext(ctx, query, id, imagePath, updatedAt)
	if err != nil {
		return mapError("set person image", err)
	}
	return requireRow(result)
}

func (r *PersonWriteRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE persons SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.uow.Executor(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return mapError("delete person", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrPersonNotFound
	}
	return nil
}

// mapError translates constraint violations into domain errors.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return models.ErrDuplicatePersonalNumber
		case "23503":
			return models.ErrCityNotFound
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner, extra ...any) (*models.Person, error) {
	var p models.Person
	var gender string
	var imagePath sql.NullString
	dest := append([]any{
		&p.ID, &p.FirstName, &p.LastName, &p.PersonalNumber, &p.BirthDate, &gender, &p.CityID,
		&imagePath, &p.CreatedAt, &p.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p.Gender = models.Gender(gender)
	if imagePath.Valid {
		p.ImagePath = imagePath.String
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
