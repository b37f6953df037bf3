package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"image_gen/internal/common"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	stdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const limiterPrefix = "image_gen_limiter"

// NewLimiterStore shares counters through Redis when a client is given and
// keeps them per process otherwise.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: limiterPrefix}), nil
	}
	store, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: limiterPrefix})
	if err != nil {
		return nil, fmt.Errorf("redis limiter store: %w", err)
	}
	return store, nil
}

// NewIPRateLimiter limits by client IP. rateFormatted: "100-M", "1000-H", "50-S".
// Empty disables.
func NewIPRateLimiter(rateFormatted string, store limiter.Store, log zerolog.Logger) (func(next http.Handler) http.Handler, error) {
	if rateFormatted == "" {
		return noopMiddleware, nil
	}
	rate, err := limiter.NewRateFromFormatted(rateFormatted)
	if err != nil {
		return nil, fmt.Errorf("ip rate %q: %w", rateFormatted, err)
	}
	instance := limiter.New(store, rate)
	mw := stdlib.NewMiddleware(instance,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			common.RespondWithDomainError(w, log, common.ErrRateLimited)
		}),
	)
	return mw.Handler, nil
}

// NewUserRateLimiter limits by authenticated user. Use after Authenticator.
func NewUserRateLimiter(rateFormatted string, store limiter.Store, log zerolog.Logger) (func(next http.Handler) http.Handler, error) {
	if rateFormatted == "" {
		return noopMiddleware, nil
	}
	rate, err := limiter.NewRateFromFormatted(rateFormatted)
	if err != nil {
		return nil, fmt.Errorf("user rate %q: %w", rateFormatted, err)
	}
	return userLimitMiddleware(limiter.New(store, rate), log), nil
}

func userLimitMiddleware(instance *limiter.Limiter, log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := instance.Increment(r.Context(), "user:"+id.UserID, 1)
			if err != nil {
				// Fail open.
				log.Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))
			if ctx.Reached {
				common.RespondWithDomainError(w, log, common.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func noopMiddleware(next http.Handler) http.Handler {
	return next
}
