package models

import "time"

// PersonView is the read-optimised projection of a person, cached in Redis.
type PersonView struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	PersonalNumber string    `json:"personalNumber"`
	BirthDate      time.Time `json:"birthDate"`
	Gender         Gender    `json:"gender"`
	CityID         int       `json:"cityId"`
	ImagePath      string    `json:"imagePath,omitempty"`
	CreatedAt      time.Time `json:"createdTimestamp"`
	UpdatedAt      time.Time `json:"updatedTimestamp"`
}

// PersonPage is one page of a person listing.
type PersonPage struct {
	Items    []PersonView `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Total    int          `json:"total"`
}

// CityStats is the per-city projection maintained from person events.
type CityStats struct {
	CityID     int   `json:"cityId"`
	Population int64 `json:"population"`
}

// ToView converts the write model to its read projection.
func (p *Person) ToView() *PersonView {
	return &PersonView{
		ID:             p.ID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		PersonalNumber: p.PersonalNumber,
		BirthDate:      p.BirthDate,
		Gender:         p.Gender,
		CityID:         p.CityID,
		ImagePath:      p.ImagePath,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
