package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tbc/persons/shared/cqrs"
	"github.com/tbc/persons/shared/middleware"
	"github.com/tbc/persons/shared/models"
	"github.com/tbc/persons/shared/pipeline"
	"github.com/tbc/persons/shared/utils"
)

const (
	dateLayout   = "2006-01-02"
	maxImageSize = 5 << 20
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// PersonCommander defines the write-side operations used by PersonHandler.
type PersonCommander interface {
	CreatePerson(context.Context, cqrs.CreatePersonCommand) (*models.Person, error)
	UpdatePerson(context.Context, cqrs.UpdatePersonCommand) (*models.Person, error)
	DeletePerson(context.Context, cqrs.DeletePersonCommand) error
	// SetPersonImage also reports the image path it replaced, if any.
	SetPersonImage(context.Context, cqrs.SetPersonImageCommand) (*models.Person, string, error)
}

// PersonQuerier defines the read-side operations used by PersonHandler.
type PersonQuerier interface {
	GetPerson(context.Context, cqrs.GetPersonQuery) (*models.PersonView, error)
	ListPersons(context.Context, cqrs.ListPersonsQuery) (*models.PersonPage, error)
	GetCityStats(context.Context, cqrs.GetCityStatsQuery) (*models.CityStats, error)
}

// PersonHandler routes requests to the command or query service as appropriate.
type PersonHandler struct {
	commands PersonCommander
	queries  PersonQuerier
	imageDir string
}

type PersonRequest struct {
	FirstName      string `json:"firstName" validate:"required,min=2,max=50"`
	LastName       string `json:"lastName" validate:"required,min=2,max=50"`
	PersonalNumber string `json:"personalNumber" validate:"required,personalnumber"`
	BirthDate      string `json:"birthDate" validate:"required,datetime=2006-01-02"`
	Gender         string `json:"gender" validate:"required,oneof=male female"`
	CityID         int    `json:"cityId" validate:"required,gt=0"`
}

// PatchPersonRequest is a partial update body. Absent or null fields keep
// their stored value.
type PatchPersonRequest struct {
	FirstName      *string `json:"firstName" validate:"omitempty,min=2,max=50"`
	LastName       *string `json:"lastName" validate:"omitempty,min=2,max=50"`
	PersonalNumber *string `json:"personalNumber" validate:"omitempty,personalnumber"`
	BirthDate      *string `json:"birthDate" validate:"omitempty,datetime=2006-01-02"`
	Gender         *string `json:"gender" validate:"omitempty,oneof=male female"`
	CityID         *int    `json:"cityId" validate:"omitempty,gt=0"`
}

func (r PatchPersonRequest) empty() bool {
	return r.FirstName == nil && r.LastName == nil && r.PersonalNumber == nil &&
		r.BirthDate == nil && r.Gender == nil && r.CityID == nil
}

type ListPersonsRequest struct {
	FirstName      string `form:"firstName"`
	LastName       string `form:"lastName"`
	PersonalNumber string `form:"personalNumber"`
	Gender         string `form:"gender" validate:"omitempty,oneof=male female"`
	CityID         int    `form:"cityId" validate:"gte=0"`
	BornAfter      string `form:"bornAfter" validate:"omitempty,datetime=2006-01-02"`
	BornBefore     string `form:"bornBefore" validate:"omitempty,datetime=2006-01-02"`
	Search         string `form:"search" validate:"max=50"`
	Page           int    `form:"page" validate:"gte=0"`
	PageSize       int    `form:"pageSize" validate:"gte=0,lte=100"`
}

func NewPersonHandler(commands PersonCommander, queries PersonQuerier, imageDir string) *PersonHandler {
	return &PersonHandler{commands: commands, queries: queries, imageDir: imageDir}
}

// bindPerson decodes and validates a create body. It writes the error
// response itself and reports false when the request should stop.
func bindPerson(c *gin.Context) (PersonRequest, time.Time, bool) {
	var req PersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return req, time.Time{}, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return req, time.Time{}, false
	}
	birthDate, _ := time.Parse(dateLayout, req.BirthDate)
	return req, birthDate, true
}

func (h *PersonHandler) CreatePerson(c *gin.Context) {
	req, birthDate, ok := bindPerson(c)
	if !ok {
		return
	}

	person, err := h.commands.CreatePerson(c.Request.Context(), cqrs.CreatePersonCommand{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PersonalNumber: req.PersonalNumber,
		BirthDate:      birthDate,
		Gender:         models.Gender(req.Gender),
		CityID:         req.CityID,
	})
	if err != nil {
		respondWithCommandError(c, err, "Failed to create person")
		return
	}

	c.JSON(http.StatusCreated, person.ToView())
}

func (h *PersonHandler) GetPerson(c *gin.Context) {
	view, err := h.queries.GetPerson(c.Request.Context(), cqrs.GetPersonQuery{PersonID: c.Param("personId")})
	if err != nil {
		if errors.Is(err, models.ErrPersonNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, "Person not found")
			return
		}
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to get person")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *PersonHandler) ListPersons(c *gin.Context) {
	var req ListPersonsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	q := cqrs.ListPersonsQuery{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PersonalNumber: req.PersonalNumber,
		Gender:         models.Gender(req.Gender),
		CityID:         req.CityID,
		Search:         req.Search,
		Page:           req.Page,
		PageSize:       req.PageSize,
	}
	if req.BornAfter != "" {
		t, _ := time.Parse(dateLayout, req.BornAfter)
		q.BornAfter = &t
	}
	if req.BornBefore != "" {
		t, _ := time.Parse(dateLayout, req.BornBefore)
		q.BornBefore = &t
	}

	page, err := h.queries.ListPersons(c.Request.Context(), q)
	if err != nil {
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to list persons")
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *PersonHandler) UpdatePerson(c *gin.Context) {
	var req PatchPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	if req.empty() {
		middleware.RespondWithError(c, http.StatusBadRequest, "No fields to update")
		return
	}

	cmd := cqrs.UpdatePersonCommand{
		PersonID:       c.Param("personId"),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PersonalNumber: req.PersonalNumber,
		CityID:         req.CityID,
	}
	if req.BirthDate != nil {
		birthDate, _ := time.Parse(dateLayout, *req.BirthDate)
		cmd.BirthDate = &birthDate
	}
	if req.Gender != nil {
		gender := models.Gender(*req.Gender)
		cmd.Gender = &gender
	}

	person, err := h.commands.UpdatePerson(c.Request.Context(), cmd)
	if err != nil {
		respondWithCommandError(c, err, "Failed to update person")
		return
	}

	c.JSON(http.StatusOK, person.ToView())
}

func (h *PersonHandler) DeletePerson(c *gin.Context) {
	err := h.commands.DeletePerson(c.Request.Context(), cqrs.DeletePersonCommand{PersonID: c.Param("personId")})
	if err != nil {
		respondWithCommandError(c, err, "Failed to delete person")
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadImage stores the multipart "image" file under the image directory
// and records its path on the person.
func (h *PersonHandler) UploadImage(c *gin.Context) {
	personID := c.Param("personId")
	if !utils.ValidatePersonID(personID) {
		middleware.RespondWithError(c, http.StatusNotFound, "Person not found")
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Image file required")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !imageExtensions[ext] {
		middleware.RespondWithError(c, http.StatusBadRequest, "Image must be a JPEG or PNG file")
		return
	}
	if file.Size > maxImageSize {
		middleware.RespondWithError(c, http.StatusRequestEntityTooLarge, "Image must be at most 5MB")
		return
	}

	// Each upload gets its own name so a rejected one never touches the
	// image the person already has.
	dst := filepath.Join(h.imageDir, utils.GenerateID(personID)+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to store image")
		return
	}

	person, previous, err := h.commands.SetPersonImage(c.Request.Context(), cqrs.SetPersonImageCommand{
		PersonID:  personID,
		ImagePath: dst,
	})
	if err != nil {
		_ = os.Remove(dst)
		respondWithCommandError(c, err, "Failed to set person image")
		return
	}
	if previous != "" && previous != dst {
		_ = os.Remove(previous)
	}

	c.JSON(http.StatusOK, person.ToView())
}

func (h *PersonHandler) GetCityStats(c *gin.Context) {
	cityID, err := strconv.Atoi(c.Param("cityId"))
	if err != nil || cityID <= 0 {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid city id")
		return
	}

	stats, err := h.queries.GetCityStats(c.Request.Context(), cqrs.GetCityStatsQuery{CityID: cityID})
	if err != nil {
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to get city stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

func respondWithCommandError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		if details := middleware.ValidationErrors(err); details != nil {
			middleware.RespondWithValidationError(c, details)
			return
		}
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request data")
	case errors.Is(err, models.ErrPersonNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "Person not found")
	case errors.Is(err, models.ErrDuplicatePersonalNumber):
		middleware.RespondWithError(c, http.StatusConflict, "A person with this personal number already exists")
	case errors.Is(err, models.ErrCityNotFound):
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "City not found")
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}
