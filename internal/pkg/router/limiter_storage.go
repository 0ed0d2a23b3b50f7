package router

import (
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"
)

// NewLimiterStorage creates rate limiter storage on the cache server, using
// database 2 so limiter keys stay apart from locks and counters.
func NewLimiterStorage(cacheClient *goredis.Client) *redis.Storage {
	host := "localhost"
	port := 6379
	password := ""
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		password = cacheClient.Options().Password
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 2,
	})
}
