package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	httputil "webchat/internal/pkg/http"
)

const rateLimitLuaScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local retry_after = 0

if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, 86400)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`

var rateLimitScript = redis.NewScript(rateLimitLuaScript)

// RateLimitKeyPrefix 限流桶键前缀
const RateLimitKeyPrefix = "webchat:rate_limit:"

// RateLimit 按客户端 IP 的令牌桶限流，容量为 2*qps
// redisClient 为 nil 时使用进程内桶；Redis 异常时放行
func RateLimit(redisClient *redis.Client, qps int) gin.HandlerFunc {
	capacity := 2 * qps
	local := newLocalLimiter(float64(qps), capacity)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		var (
			allowed    bool
			remaining  int
			retryAfter int
		)
		if redisClient != nil {
			var err error
			allowed, remaining, retryAfter, err = evalBucket(c, redisClient, RateLimitKeyPrefix+ip, capacity, float64(qps))
			if err != nil {
				log.Warn().Err(err).Msg("Rate limiter unavailable, request allowed")
				c.Next()
				return
			}
		} else {
			allowed, remaining, retryAfter = local.allow(ip)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(capacity))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.ErrorResponse{
				Code:    httputil.CodeRateLimited,
				Message: "请求过于频繁，请稍后再试",
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}

func evalBucket(c *gin.Context, client *redis.Client, key string, capacity int, qps float64) (bool, int, int, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	result, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, capacity, qps, now, 1).Result()
	if err != nil {
		return false, 0, 0, err
	}

	allowed, remaining, retryAfter := int64(0), capacity, 0
	if arr, ok := result.([]any); ok && len(arr) >= 3 {
		if v, ok := arr[0].(int64); ok {
			allowed = v
		}
		if v, ok := arr[1].(int64); ok {
			remaining = int(v)
		}
		if v, ok := arr[2].(int64); ok {
			retryAfter = int(v)
		}
	}
	return allowed == 1, remaining, retryAfter, nil
}

// localLimiter 进程内按 IP 分桶
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      float64
	burst    int
}

func newLocalLimiter(qps float64, burst int) *localLimiter {
	return &localLimiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      qps,
		burst:    burst,
	}
}

func (l *localLimiter) allow(key string) (bool, int, int) {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.qps), l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	now := time.Now()
	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, 1
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, int(math.Ceil(delay.Seconds()))
	}
	return true, int(limiter.TokensAt(now)), 0
}
