package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/tranvanhung2003/digital-world-cart/domain"
	c "github.com/tranvanhung2003/digital-world-cart/internal/cache"
	r "github.com/tranvanhung2003/digital-world-cart/internal/repository"
	"gotest.tools/v3/assert"
)

func setupTestRedis(t *testing.T) (*c.RedisCache, *miniredis.Miniredis, func()) {
	// Create an in-memory Redis server
	mr := miniredis.RunT(t)

	// Create Redis client pointing to miniredis
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	// Create cache instance
	cache := c.NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func setupTestDB(t *testing.T) (r.CartRepository, func()) {
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	// Get connection string
	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Connect to MongoDB
	db, err := r.ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	// Create repository
	repo := r.NewMongoRepository(db)

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	// Start Kafka container using testcontainers Kafka module
	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	// Get broker address
	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	topicConfigs := []kafkaGo.TopicConfig{{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}}

	err = controllerConn.CreateTopics(topicConfigs...)
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_EmptiesCartOnOrderCompleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cache, _, cleanupRedis := setupTestRedis(t)
	defer cleanupRedis()
	dbRepo, cleanupDb := setupTestDB(t)
	defer cleanupDb()
	brokers, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	topic := "order-completed"
	createTopic(t, brokers, topic)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	poller := NewPoller(dbRepo, cache, log, brokers)

	ownerID := "user123"

	// create cart and cache it
	dbRepo.AddItem(ctx, ownerID, domain.CartItem{
		ProductID: "P1",
		Quantity:  1,
	})
	cart, errGetCart := dbRepo.GetCart(ctx, ownerID)
	require.NoError(t, errGetCart)
	require.NotNil(t, cart)
	assert.Equal(t, 1, len(cart.Items))
	err := cache.Set(ctx, ownerID, cart)
	require.NoError(t, err)

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}

	payload := map[string]interface{}{
		"order_id":     "ord-1",
		"owner_id":     ownerID,
		"total_amount": "1",
		"currency":     "usd",
		"completed_at": time.Time{},
	}

	payloadJSON, err := json.Marshal(payload)
	require.NoError(t, err)
	msg := kafkaGo.Message{
		Key:   []byte("ord-1"), // order_id for ordering
		Value: payloadJSON,
		Headers: []kafkaGo.Header{
			{Key: "event_type", Value: []byte("order-completed")},
		},
	}

	err = w.WriteMessages(ctx, msg)
	require.NoError(t, err)
	w.Close()

	go poller.Run(ctx) // start poller
	require.Eventually(t, func() bool {
		_, eClearCart := dbRepo.GetCart(ctx, ownerID)
		return errors.Is(eClearCart, r.ErrCartNotFound) // cart is cleared
	}, 15*time.Second, 500*time.Millisecond)

	require.Eventually(t, func() bool {
		_, eGetCache := cache.Get(ctx, ownerID)
		return errors.Is(eGetCache, c.ErrCacheMiss) // cache is cleared
	}, 15*time.Second, 500*time.Millisecond)
}
