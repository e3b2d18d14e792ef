package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/tbc/persons/shared/expr"
	"github.com/tbc/persons/shared/models"
	sharedredis "github.com/tbc/persons/shared/redis"
)

const (
	personViewKeyPrefix     = "person:view:"
	cityPopulationKeyPrefix = "city:population:"
)

var personFilterColumns = expr.Columns[models.Person]()

// PersonReadRepository handles all read operations for persons.
// It uses Redis as the primary read store for single lookups, falling back to
// PostgreSQL on a miss. Listings always go to PostgreSQL.
type PersonReadRepository struct {
	db    *sql.DB
	redis *goredis.Client
	cache *sharedredis.ViewCache[models.PersonView]
}

func NewPersonReadRepository(db *sql.DB, redisClient *goredis.Client, cacheTTL time.Duration, logger *slog.Logger) *PersonReadRepository {
	return &PersonReadRepository{
		db:    db,
		redis: redisClient,
		cache: sharedredis.NewViewCache[models.PersonView](redisClient, personViewKeyPrefix, cacheTTL, logger),
	}
}

// GetByID returns a PersonView from Redis first, then PostgreSQL.
func (r *PersonReadRepository) GetByID(ctx context.Context, id string) (*models.PersonView, error) {
	return r.cache.GetOrLoad(ctx, id, func(ctx context.Context) (*models.PersonView, error) {
		query := `SELECT ` + personColumns + ` FROM persons WHERE id = $1 AND deleted_at IS NULL`
		p, err := scanPerson(r.db.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPersonNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get person: %w", err)
		}
		return p.ToView(), nil
	})
}

// List returns one page of persons matching filter, ordered by name.
func (r *PersonReadRepository) List(ctx context.Context, filter expr.Lambda[models.Person], page, pageSize int) (*models.PersonPage, error) {
	where, args, err := expr.ToSQL(filter, personFilterColumns, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to compile person filter: %w", err)
	}
	query, queryArgs := listQuery(where, args, page, pageSize)

	rows, err := r.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	result := &models.PersonPage{Items: []models.PersonView{}, Page: page, PageSize: pageSize}
	for rows.Next() {
		var total int
		p, err := scanPerson(rows, &total)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		result.Total = total
		result.Items = append(result.Items, *p.ToView())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}

	// a page past the end carries no window count
	if len(result.Items) == 0 && page > 1 {
		if err := r.db.QueryRowContext(ctx, countQuery(where), args...).Scan(&result.Total); err != nil {
			return nil, fmt.Errorf("failed to count persons: %w", err)
		}
	}
	return result, nil
}

// listQuery appends the LIMIT and OFFSET parameters after the filter's own.
func listQuery(where string, args []any, page, pageSize int) (string, []any) {
	limit := "$" + strconv.Itoa(len(args)+1)
	offset := "$" + strconv.Itoa(len(args)+2)
	query := `SELECT ` + personColumns + `, COUNT(*) OVER ()
		FROM persons
		WHERE deleted_at IS NULL AND ` + where + `
		ORDER BY last_name, first_name, id
		LIMIT ` + limit + ` OFFSET ` + offset
	queryArgs := make([]any, 0, len(args)+2)
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, pageSize, int64(page-1)*int64(pageSize))
	return query, queryArgs
}

func countQuery(where string) string {
	return `SELECT COUNT(*) FROM persons WHERE deleted_at IS NULL AND ` + where
}

// CacheView stores or refreshes the Redis read model for a person.
// Called by the command service after every mutation.
func (r *PersonReadRepository) CacheView(ctx context.Context, view *models.PersonView) {
	r.cache.Set(ctx, view.ID, view)
}

// InvalidateView removes the Redis read model entry for a deleted person.
func (r *PersonReadRepository) InvalidateView(ctx context.Context, personID string) {
	r.cache.Delete(ctx, personID)
}

// AdjustCityPopulation moves the city's person counter by delta.
func (r *PersonReadRepository) AdjustCityPopulation(ctx context.Context, cityID int, delta int64) error {
	key := cityPopulationKeyPrefix + strconv.Itoa(cityID)
	if err := r.redis.IncrBy(ctx, key, delta).Err(); err != nil {
		return fmt.Errorf("failed to adjust population of city %d: %w", cityID, err)
	}
	return nil
}

// CityPopulation reads the counter maintained by AdjustCityPopulation.
// A city without events has population zero.
func (r *PersonReadRepository) CityPopulation(ctx context.Context, cityID int) (int64, error) {
	n, err := r.redis.Get(ctx, cityPopulationKeyPrefix+strconv.Itoa(cityID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read population of city %d: %w", cityID, err)
	}
	return n, nil
}
