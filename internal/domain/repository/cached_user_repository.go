package repository

import (
	"context"
	"time"

	"taskweb/internal/domain/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	userCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskweb_user_cache_hits_total",
		Help: "Number of user lookups served from the in-memory cache.",
	})
	userCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskweb_user_cache_misses_total",
		Help: "Number of user lookups that went to the database.",
	})
)

// cachedUserRepository memoizes FindByID, which the auth middleware calls on
// every request. Users are immutable apart from creation, so entries only
// need a TTL.
type cachedUserRepository struct {
	UserRepository
	byID *expirable.LRU[int64, model.User]
}

// NewCachedUserRepository wraps next with a TTL-bounded LRU. A size of zero
// disables caching.
func NewCachedUserRepository(next UserRepository, size int, ttl time.Duration) UserRepository {
	if size <= 0 {
		return next
	}
	return &cachedUserRepository{
		UserRepository: next,
		byID:           expirable.NewLRU[int64, model.User](size, nil, ttl),
	}
}

func (r *cachedUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if user, ok := r.byID.Get(id); ok {
		userCacheHitsTotal.Inc()
		return &user, nil
	}
	userCacheMissesTotal.Inc()

	user, err := r.UserRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.byID.Add(id, *user)
	return user, nil
}
