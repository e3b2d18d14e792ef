package query

import (
	"context"
	"strings"

	"github.com/tbc/persons/person-service/internal/repository"
	"github.com/tbc/persons/shared/cqrs"
	"github.com/tbc/persons/shared/expr"
	"github.com/tbc/persons/shared/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 100000 // keeps (page-1)*pageSize far from overflowing
)

// PersonQueryService reads person views from the Redis cache (with a Postgres
// fallback) and runs filtered listings against Postgres.
type PersonQueryService struct {
	readRepo *repository.PersonReadRepository
}

func NewPersonQueryService(readRepo *repository.PersonReadRepository) *PersonQueryService {
	return &PersonQueryService{readRepo: readRepo}
}

func (s *PersonQueryService) GetPerson(ctx context.Context, q cqrs.GetPersonQuery) (*models.PersonView, error) {
	return s.readRepo.GetByID(ctx, q.PersonID)
}

func (s *PersonQueryService) ListPersons(ctx context.Context, q cqrs.ListPersonsQuery) (*models.PersonPage, error) {
	page, pageSize := Paging(q.Page, q.PageSize)
	return s.readRepo.List(ctx, PersonFilter(q), page, pageSize)
}

func (s *PersonQueryService) GetCityStats(ctx context.Context, q cqrs.GetCityStatsQuery) (*models.CityStats, error) {
	n, err := s.readRepo.CityPopulation(ctx, q.CityID)
	if err != nil {
		return nil, err
	}
	return &models.CityStats{CityID: q.CityID, Population: n}, nil
}

// Paging clamps the requested page and page size to usable values.
func Paging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

type personPredicate = expr.Lambda[models.Person]

func where(build func(p *expr.Param) expr.Node) personPredicate {
	return expr.Predicate[models.Person]("p", build)
}

// PersonFilter turns the non-empty fields of q into one predicate. Name
// filters are case-insensitive prefix matches; the search term matches any of
// first name, last name or personal number.
func PersonFilter(q cqrs.ListPersonsQuery) personPredicate {
	var filters []personPredicate

	if s := strings.TrimSpace(q.FirstName); s != "" {
		filters = append(filters, lowerPrefix("FirstName", s))
	}
	if s := strings.TrimSpace(q.LastName); s != "" {
		filters = append(filters, lowerPrefix("LastName", s))
	}
	if s := strings.TrimSpace(q.PersonalNumber); s != "" {
		filters = append(filters, where(func(p *expr.Param) expr.Node {
			return expr.Eq(expr.Field(p, "PersonalNumber"), expr.Const(s))
		}))
	}
	if q.Gender != "" {
		filters = append(filters, where(func(p *expr.Param) expr.Node {
			return expr.Eq(expr.Field(p, "Gender"), expr.Const(string(q.Gender)))
		}))
	}
	if q.CityID > 0 {
		filters = append(filters, where(func(p *expr.Param) expr.Node {
			return expr.Eq(expr.Field(p, "CityID"), expr.Const(q.CityID))
		}))
	}
	if q.BornAfter != nil {
		after := *q.BornAfter
		filters = append(filters, where(func(p *expr.Param) expr.Node {
			return expr.Ge(expr.Field(p, "BirthDate"), expr.Const(after))
		}))
	}
	if q.BornBefore != nil {
		before := *q.BornBefore
		filters = append(filters, where(func(p *expr.Param) expr.Node {
			return expr.Le(expr.Field(p, "BirthDate"), expr.Const(before))
		}))
	}
	if s := strings.ToLower(strings.TrimSpace(q.Search)); s != "" {
		byName := expr.Or(lowerContains("FirstName", s), lowerContains("LastName", s))
		byNumber := where(func(p *expr.Param) expr.Node {
			return expr.Invoke(expr.Field(p, "PersonalNumber"), expr.MethodContains, expr.Const(s))
		})
		filters = append(filters, expr.Or(byName, byNumber))
	}

	if len(filters) == 0 {
		return where(func(*expr.Param) expr.Node { return expr.Const(true) })
	}
	return expr.ToSingleExpression(filters)
}

func lowerPrefix(field, prefix string) personPredicate {
	return where(func(p *expr.Param) expr.Node {
		lowered := expr.Invoke(expr.Field(p, field), expr.MethodToLower)
		return expr.Invoke(lowered, expr.MethodStartsWith, expr.Const(strings.ToLower(prefix)))
	})
}

func lowerContains(field, term string) personPredicate {
	return where(func(p *expr.Param) expr.Node {
		lowered := expr.Invoke(expr.Field(p, field), expr.MethodToLower)
		return expr.Invoke(lowered, expr.MethodContains, expr.Const(term))
	})
}
