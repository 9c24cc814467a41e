package expiry_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/pantry-pipeline/internal/expiry"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisIndex_Contract(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	runIndexContract(t, func(t *testing.T) expiry.Index {
		key := "test:item:expirations:" + uuid.NewString()
		t.Cleanup(func() { client.Del(context.Background(), key) })
		return expiry.NewRedisIndex(client, key)
	})
}
