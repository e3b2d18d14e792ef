package cqrs

import (
	"time"

	"github.com/tbc/persons/shared/models"
)

type CreatePersonCommand struct {
	FirstName      string        `validate:"required,min=2,max=50"`
	LastName       string        `validate:"required,min=2,max=50"`
	PersonalNumber string        `validate:"required,personalnumber"`
	BirthDate      time.Time     `validate:"required"`
	Gender         models.Gender `validate:"required,oneof=male female"`
	CityID         int           `validate:"required,gt=0"`
}

// UpdatePersonCommand changes only the fields that are set.
type UpdatePersonCommand struct {
	PersonID       string         `validate:"required"`
	FirstName      *string        `validate:"omitempty,min=2,max=50"`
	LastName       *string        `validate:"omitempty,min=2,max=50"`
	PersonalNumber *string        `validate:"omitempty,personalnumber"`
	BirthDate      *time.Time     `validate:"omitempty"`
	Gender         *models.Gender `validate:"omitempty,oneof=male female"`
	CityID         *int           `validate:"omitempty,gt=0"`
}

// Apply copies the set fields onto person.
func (c UpdatePersonCommand) Apply(person *models.Person) {
	if c.FirstName != nil {
		person.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		person.LastName = *c.LastName
	}
	if c.PersonalNumber != nil {
		person.PersonalNumber = *c.PersonalNumber
	}
	if c.BirthDate != nil {
		person.BirthDate = *c.BirthDate
	}
	if c.Gender != nil {
		person.Gender = *c.Gender
	}
	if c.CityID != nil {
		person.CityID = *c.CityID
	}
}

type DeletePersonCommand struct {
	PersonID string `validate:"required"`
}

// SetPersonImageCommand records the stored location of an uploaded image.
type SetPersonImageCommand struct {
	PersonID  string `validate:"required"`
	ImagePath string `validate:"required"`
}
