package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tbc/persons/shared/cqrs"
	"github.com/tbc/persons/shared/models"
	"github.com/tbc/persons/shared/pipeline"
)

// ---- mock implementations ----

type mockPersonCommander struct {
	createFn   func(cqrs.CreatePersonCommand) (*models.Person, error)
	updateFn   func(cqrs.UpdatePersonCommand) (*models.Person, error)
	deleteFn   func(cqrs.DeletePersonCommand) error
	setImageFn func(cqrs.SetPersonImageCommand) (*models.Person, string, error)
}

func (m *mockPersonCommander) CreatePerson(_ context.Context, cmd cqrs.CreatePersonCommand) (*models.Person, error) {
	if m.createFn != nil {
		return m.createFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockPersonCommander) UpdatePerson(_ context.Context, cmd cqrs.UpdatePersonCommand) (*models.Person, error) {
	if m.updateFn != nil {
		return m.updateFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockPersonCommander) DeletePerson(_ context.Context, cmd cqrs.DeletePersonCommand) error {
	if m.deleteFn != nil {
		return m.deleteFn(cmd)
	}
	return fmt.Errorf("not configured")
}
func (m *mockPersonCommander) SetPersonImage(_ context.Context, cmd cqrs.SetPersonImageCommand) (*models.Person, string, error) {
	if m.setImageFn != nil {
		return m.setImageFn(cmd)
	}
	return nil, "", fmt.Errorf("not configured")
}

type mockPersonQuerier struct {
	getFn   func(cqrs.GetPersonQuery) (*models.PersonView, error)
	listFn  func(cqrs.ListPersonsQuery) (*models.PersonPage, error)
	statsFn func(cqrs.GetCityStatsQuery) (*models.CityStats, error)
}

func (m *mockPersonQuerier) GetPerson(_ context.Context, q cqrs.GetPersonQuery) (*models.PersonView, error) {
	if m.getFn != nil {
		return m.getFn(q)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockPersonQuerier) ListPersons(_ context.Context, q cqrs.ListPersonsQuery) (*models.PersonPage, error) {
	if m.listFn != nil {
		return m.listFn(q)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockPersonQuerier) GetCityStats(_ context.Context, q cqrs.GetCityStatsQuery) (*models.CityStats, error) {
	if m.statsFn != nil {
		return m.statsFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

// ---- helpers ----

func newPersonTestRouter(cmds PersonCommander, qrys PersonQuerier, imageDir string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewPersonHandler(cmds, qrys, imageDir)
	v1 := r.Group("/v1/persons")
	v1.POST("", h.CreatePerson)
	v1.GET("", h.ListPersons)
	v1.GET("/:personId", h.GetPerson)
	v1.PATCH("/:personId", h.UpdatePerson)
	v1.DELETE("/:personId", h.DeletePerson)
	v1.PUT("/:personId/image", h.UploadImage)
	r.GET("/v1/cities/:cityId/stats", h.GetCityStats)
	return r
}

func personDoRequest(router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, url, nil)
	if body != nil {
		b, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, strings.NewReader(string(b)))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ---- test data ----

var pTestPerson = &models.Person{
	ID: "per-0000000001", FirstName: "Nino", LastName: "Beridze",
	PersonalNumber: "01001011234", BirthDate: time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC),
	Gender: models.GenderFemale, CityID: 1,
	CreatedAt: time.Now(), UpdatedAt: time.Now(),
}

func pValidBody() map[string]interface{} {
	return map[string]interface{}{
		"firstName": "Nino", "lastName": "Beridze",
		"personalNumber": "01001011234", "birthDate": "1990-03-01",
		"gender": "female", "cityId": 1,
	}
}

func pInvalidRequestErr(t *testing.T) error {
	t.Helper()
	type cmd struct {
		FirstName string `validate:"required"`
	}
	verr := validator.New().Struct(cmd{})
	return fmt.Errorf("%w: CreatePersonCommand: %w", pipeline.ErrInvalidRequest, verr)
}

// ---- tests ----

func TestCreatePerson(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		createFn       func(cqrs.CreatePersonCommand) (*models.Person, error)
		expectedStatus int
	}{
		{
			name: "success - creates new person",
			body: pValidBody(),
			createFn: func(cmd cqrs.CreatePersonCommand) (*models.Person, error) {
				if !cmd.BirthDate.Equal(pTestPerson.BirthDate) || cmd.Gender != models.GenderFemale {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				return pTestPerson, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "bad request - missing required fields",
			body:           map[string]interface{}{"firstName": "Nino"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad request - invalid personal number",
			body: func() map[string]interface{} {
				b := pValidBody()
				b["personalNumber"] = "12ab"
				return b
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad request - invalid birth date",
			body: func() map[string]interface{} {
				b := pValidBody()
				b["birthDate"] = "01/03/1990"
				return b
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - rejected by pipeline validation",
			body:           pValidBody(),
			createFn:       func(cmd cqrs.CreatePersonCommand) (*models.Person, error) { return nil, pInvalidRequestErr(t) },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "conflict - duplicate personal number",
			body:           pValidBody(),
			createFn:       func(cmd cqrs.CreatePersonCommand) (*models.Person, error) { return nil, models.ErrDuplicatePersonalNumber },
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "unprocessable - unknown city",
			body:           pValidBody(),
			createFn:       func(cmd cqrs.CreatePersonCommand) (*models.Person, error) { return nil, models.ErrCityNotFound },
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "internal error - transaction failed",
			body:           pValidBody(),
			createFn:       func(cmd cqrs.CreatePersonCommand) (*models.Person, error) { return nil, fmt.Errorf("commit transaction: conn closed") },
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &mockPersonCommander{createFn: tt.createFn}
			router := newPersonTestRouter(cmds, &mockPersonQuerier{}, t.TempDir())
			w := personDoRequest(router, http.MethodPost, "/v1/persons", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code == http.StatusCreated {
				var got models.PersonView
				if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.ID != pTestPerson.ID || !got.CreatedAt.Equal(pTestPerson.CreatedAt) {
					t.Errorf("[%s] expected person view, got %s", tt.name, w.Body.String())
				}
			}
		})
	}
}

func TestGetPerson(t *testing.T) {
	tests := []struct {
		name           string
		getFn          func(cqrs.GetPersonQuery) (*models.PersonView, error)
		expectedStatus int
	}{
		{
			name:           "success - fetch person",
			getFn:          func(q cqrs.GetPersonQuery) (*models.PersonView, error) { return pTestPerson.ToView(), nil },
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not found - person does not exist",
			getFn:          func(q cqrs.GetPersonQuery) (*models.PersonView, error) { return nil, models.ErrPersonNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "internal error",
			getFn:          func(q cqrs.GetPersonQuery) (*models.PersonView, error) { return nil, fmt.Errorf("db down") },
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newPersonTestRouter(&mockPersonCommander{}, &mockPersonQuerier{getFn: tt.getFn}, t.TempDir())
			w := personDoRequest(router, http.MethodGet, "/v1/persons/per-0000000001", nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestListPersons(t *testing.T) {
	var got cqrs.ListPersonsQuery
	listFn := func(q cqrs.ListPersonsQuery) (*models.PersonPage, error) {
		got = q
		return &models.PersonPage{Items: []models.PersonView{*pTestPerson.ToView()}, Page: 1, PageSize: 20, Total: 1}, nil
	}
	router := newPersonTestRouter(&mockPersonCommander{}, &mockPersonQuerier{listFn: listFn}, t.TempDir())

	w := personDoRequest(router, http.MethodGet, "/v1/persons?firstName=Ni&gender=female&cityId=1&bornAfter=1980-01-01&search=ber&page=2&pageSize=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if got.FirstName != "Ni" || got.Gender != models.GenderFemale || got.CityID != 1 || got.Page != 2 || got.PageSize != 10 {
		t.Errorf("unexpected query %+v", got)
	}
	if got.BornAfter == nil || got.BornAfter.Year() != 1980 || got.BornBefore != nil {
		t.Errorf("unexpected birth date bounds %+v", got)
	}

	var page models.PersonPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil || page.Total != 1 || len(page.Items) != 1 {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	for _, url := range []string{
		"/v1/persons?gender=other",
		"/v1/persons?bornBefore=yesterday",
		"/v1/persons?pageSize=1000",
		"/v1/persons?cityId=abc",
	} {
		w := personDoRequest(router, http.MethodGet, url, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("[%s] expected status 400, got %d; body: %s", url, w.Code, w.Body.String())
		}
	}
}

func TestUpdatePerson(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		updateFn       func(cqrs.UpdatePersonCommand) (*models.Person, error)
		expectedStatus int
	}{
		{
			name: "success - full update",
			body: pValidBody(),
			updateFn: func(cmd cqrs.UpdatePersonCommand) (*models.Person, error) {
				if cmd.PersonID != "per-0000000001" || cmd.FirstName == nil || cmd.BirthDate == nil || cmd.Gender == nil {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				if !cmd.BirthDate.Equal(pTestPerson.BirthDate) || *cmd.Gender != models.GenderFemale {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				return pTestPerson, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "success - partial update leaves other fields unset",
			body: map[string]interface{}{"cityId": 2},
			updateFn: func(cmd cqrs.UpdatePersonCommand) (*models.Person, error) {
				if cmd.CityID == nil || *cmd.CityID != 2 {
					return nil, fmt.Errorf("unexpected city %v", cmd.CityID)
				}
				if cmd.FirstName != nil || cmd.LastName != nil || cmd.PersonalNumber != nil ||
					cmd.BirthDate != nil || cmd.Gender != nil {
					return nil, fmt.Errorf("unexpected fields set %+v", cmd)
				}
				return pTestPerson, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not found - person does not exist",
			body:           pValidBody(),
			updateFn:       func(cmd cqrs.UpdatePersonCommand) (*models.Person, error) { return nil, models.ErrPersonNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "bad request - nothing to update",
			body:           map[string]interface{}{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - invalid partial field",
			body:           map[string]interface{}{"firstName": "N"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - invalid birth date",
			body:           map[string]interface{}{"birthDate": "01/03/1990"},
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &mockPersonCommander{updateFn: tt.updateFn}
			router := newPersonTestRouter(cmds, &mockPersonQuerier{}, t.TempDir())
			w := personDoRequest(router, http.MethodPatch, "/v1/persons/per-0000000001", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestDeletePerson(t *testing.T) {
	tests := []struct {
		name           string
		deleteFn       func(cqrs.DeletePersonCommand) error
		expectedStatus int
	}{
		{
			name:           "success - delete person",
			deleteFn:       func(cmd cqrs.DeletePersonCommand) error { return nil },
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "not found - person does not exist",
			deleteFn:       func(cmd cqrs.DeletePersonCommand) error { return models.ErrPersonNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "internal error - rollback",
			deleteFn:       func(cmd cqrs.DeletePersonCommand) error { return fmt.Errorf("boom") },
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &mockPersonCommander{deleteFn: tt.deleteFn}
			router := newPersonTestRouter(cmds, &mockPersonQuerier{}, t.TempDir())
			w := personDoRequest(router, http.MethodDelete, "/v1/persons/per-0000000001", nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func imageRequest(t *testing.T, url, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(content)
	}
	mw.Close()
	req, _ := http.NewRequest(http.MethodPut, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	const personID = "per-0000000001"
	tests := []struct {
		name           string
		personID       string
		filename       string
		previous       string
		setImageFn     func(cqrs.SetPersonImageCommand) (*models.Person, error)
		expectedStatus int
		expectFile     bool
		expectPrevious bool
	}{
		{
			name:     "success - stores image and removes the replaced one",
			personID: personID,
			filename: "me.PNG",
			previous: personID + ".jpg",
			setImageFn: func(cmd cqrs.SetPersonImageCommand) (*models.Person, error) {
				p := *pTestPerson
				p.ImagePath = cmd.ImagePath
				return &p, nil
			},
			expectedStatus: http.StatusOK,
			expectFile:     true,
		},
		{
			name:           "not found - person missing, upload removed",
			personID:       personID,
			filename:       "me.jpg",
			setImageFn:     func(cmd cqrs.SetPersonImageCommand) (*models.Person, error) { return nil, models.ErrPersonNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "internal error - current image survives a failed update",
			personID:       personID,
			filename:       "me.png",
			previous:       personID + ".png",
			setImageFn:     func(cmd cqrs.SetPersonImageCommand) (*models.Person, error) { return nil, fmt.Errorf("commit transaction: conn closed") },
			expectedStatus: http.StatusInternalServerError,
			expectPrevious: true,
		},
		{
			name:           "bad request - no file",
			personID:       personID,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - unsupported type",
			personID:       personID,
			filename:       "me.gif",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "not found - malformed id",
			personID:       "..",
			filename:       "me.png",
			expectedStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var previousPath string
			if tt.previous != "" {
				previousPath = filepath.Join(dir, tt.previous)
				if err := os.WriteFile(previousPath, []byte("old"), 0o600); err != nil {
					t.Fatalf("write previous image: %v", err)
				}
			}

			var stored string
			cmds := &mockPersonCommander{}
			if tt.setImageFn != nil {
				cmds.setImageFn = func(cmd cqrs.SetPersonImageCommand) (*models.Person, string, error) {
					stored = cmd.ImagePath
					p, err := tt.setImageFn(cmd)
					return p, previousPath, err
				}
			}
			router := newPersonTestRouter(cmds, &mockPersonQuerier{}, dir)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, imageRequest(t, "/v1/persons/"+tt.personID+"/image", tt.filename, []byte("\x89PNG")))
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}

			if stored != "" {
				if stored == previousPath || filepath.Dir(stored) != dir || !strings.HasPrefix(filepath.Base(stored), personID+"-") {
					t.Errorf("[%s] unexpected image path %s", tt.name, stored)
				}
				_, err := os.Stat(stored)
				if tt.expectFile && err != nil {
					t.Errorf("[%s] expected stored image: %v", tt.name, err)
				}
				if !tt.expectFile && err == nil {
					t.Errorf("[%s] expected upload to be removed", tt.name)
				}
			} else if tt.expectFile {
				t.Errorf("[%s] expected SetPersonImage to be called", tt.name)
			}

			if previousPath != "" {
				_, err := os.Stat(previousPath)
				if tt.expectPrevious && err != nil {
					t.Errorf("[%s] expected current image to survive: %v", tt.name, err)
				}
				if !tt.expectPrevious && err == nil {
					t.Errorf("[%s] expected replaced image to be removed", tt.name)
				}
			}
		})
	}
}

func TestGetCityStats(t *testing.T) {
	statsFn := func(q cqrs.GetCityStatsQuery) (*models.CityStats, error) {
		return &models.CityStats{CityID: q.CityID, Population: 42}, nil
	}
	router := newPersonTestRouter(&mockPersonCommander{}, &mockPersonQuerier{statsFn: statsFn}, t.TempDir())

	w := personDoRequest(router, http.MethodGet, "/v1/cities/3/stats", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"population":42`) {
		t.Errorf("expected stats, got %d %s", w.Code, w.Body.String())
	}

	w = personDoRequest(router, http.MethodGet, "/v1/cities/zero/stats", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
