package repository

import (
	"context"
	"time"

	"github.com/mansoorceksport/deviceauth/internal/domain"
)

const (
	accountByIDKeyPrefix = "account:id:"
	accountCacheTTL      = 5 * time.Minute
)

// CachedAccountRepository wraps MongoAccountRepository with Redis caching.
// Only FindByID is cached. The cached copy has no password hash (json:"-"),
// so credential checks must go through FindByUsername.
type CachedAccountRepository struct {
	mongo *MongoAccountRepository
	cache *RedisCacheRepository
}

// NewCachedAccountRepository creates a new cached account repository
func NewCachedAccountRepository(mongo *MongoAccountRepository, cache *RedisCacheRepository) *CachedAccountRepository {
	return &CachedAccountRepository{
		mongo: mongo,
		cache: cache,
	}
}

// Create inserts the account; nothing to invalidate for a new id
func (r *CachedAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	return r.mongo.Create(ctx, account)
}

// FindByUsername always reads through to MongoDB
func (r *CachedAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.mongo.FindByUsername(ctx, username)
}

// FindByID retrieves an account by ID with caching
func (r *CachedAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	key := accountByIDKeyPrefix + id

	// Try cache first
	var account domain.Account
	if err := r.cache.Get(ctx, key, &account); err == nil {
		return &account, nil
	}

	// Cache miss - fetch from MongoDB
	result, err := r.mongo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Store in cache (ignore cache errors)
	_ = r.cache.Set(ctx, key, result, accountCacheTTL)

	return result, nil
}
