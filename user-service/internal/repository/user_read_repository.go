package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/receiptmaster/backend/shared/models"
	sharedredis "github.com/receiptmaster/backend/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const userKeyPrefix = "user:"

// UserReadRepository handles all read operations for users.
// Point lookups are served from Redis when warm and fall back to PostgreSQL;
// listings always read PostgreSQL.
type UserReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.User]
}

// NewUserReadRepository builds a read repository. A nil redisClient disables
// caching.
func NewUserReadRepository(db *sql.DB, redisClient *goredis.Client, ttl time.Duration) *UserReadRepository {
	r := &UserReadRepository{db: db}
	if redisClient != nil {
		r.cache = sharedredis.NewViewCache[models.User](redisClient, userKeyPrefix, ttl, userVersion)
	}
	return r
}

// userVersion orders cache writes. update_date is refreshed on every
// mutation and DateLayout strings sort chronologically.
func userVersion(u *models.User) string {
	return u.UpdateDate
}

// FindByID returns the user from Redis first, then PostgreSQL. The fill after
// a miss may lose a race with a concurrent update or delete; the cache then
// keeps the newer state.
func (r *UserReadRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	key := strconv.FormatInt(id, 10)

	if r.cache != nil {
		if user, ok := r.cache.Get(ctx, key); ok {
			return user, nil
		}
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}

	r.CacheUser(ctx, user)
	return user, nil
}

// FindAll returns every user ordered by id, which is insertion order.
func (r *UserReadRepository) FindAll(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// CacheUser stores or refreshes the cached copy of user unless a newer copy
// is already cached or the user has been deleted.
func (r *UserReadRepository) CacheUser(ctx context.Context, user *models.User) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, strconv.FormatInt(user.ID, 10), user)
}

// InvalidateUser drops the cached copy of a deleted user for good.
func (r *UserReadRepository) InvalidateUser(ctx context.Context, id int64) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, strconv.FormatInt(id, 10))
}
