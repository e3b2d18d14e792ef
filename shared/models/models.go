package models

import (
	"errors"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

var (
	ErrPersonNotFound          = errors.New("person not found")
	ErrDuplicatePersonalNumber = errors.New("personal number already exists")
	ErrCityNotFound            = errors.New("city not found")
	ErrForbidden               = errors.New("forbidden")
)

// Person is the write model stored in PostgreSQL. The db tags name the
// columns used when list filters are compiled to SQL.
type Person struct {
	ID             string    `json:"id" db:"id"`
	FirstName      string    `json:"firstName" db:"first_name"`
	LastName       string    `json:"lastName" db:"last_name"`
	PersonalNumber string    `json:"personalNumber" db:"personal_number"`
	BirthDate      time.Time `json:"birthDate" db:"birth_date"`
	Gender         Gender    `json:"gender" db:"gender"`
	CityID         int       `json:"cityId" db:"city_id"`
	ImagePath      string    `json:"imagePath,omitempty" db:"image_path"`
	CreatedAt      time.Time `json:"createdTimestamp" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedTimestamp" db:"updated_at"`
}
