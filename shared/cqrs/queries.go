package cqrs

import (
	"time"

	"github.com/tbc/persons/shared/models"
)

// GetPersonQuery fetches a single person by ID.
type GetPersonQuery struct {
	PersonID string
}

// ListPersonsQuery filters and pages the person registry. Zero-valued
// filters are ignored. Search matches first name, last name or personal
// number.
type ListPersonsQuery struct {
	FirstName      string
	LastName       string
	PersonalNumber string
	Gender         models.Gender
	CityID         int
	BornAfter      *time.Time
	BornBefore     *time.Time
	Search         string
	Page           int
	PageSize       int
}

// GetCityStatsQuery reads the person count for a city.
type GetCityStatsQuery struct {
	CityID int
}
