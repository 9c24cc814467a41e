package eventbus_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
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

func TestRedisStreamBus_Contract(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	runBusContract(t, func(t *testing.T) eventbus.Bus {
		stream := "test:notifications.events:" + uuid.NewString()
		t.Cleanup(func() { client.Del(context.Background(), stream) })
		return eventbus.NewRedisStreamBus(client, stream)
	})
}
