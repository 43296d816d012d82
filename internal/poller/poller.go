package poller

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	c "github.com/tranvanhung2003/digital-world-cart/internal/cache"
	r "github.com/tranvanhung2003/digital-world-cart/internal/repository"
)

// Poller drains order-completed events and empties the buyer's cart. The order
// pipeline owns the event; the cart service only reacts to it.
type Poller struct {
	repo   r.CartRepository
	reader *kafka.Reader
	cache  c.CartCache
	log    logrus.FieldLogger
}

func NewPoller(repo r.CartRepository, cache c.CartCache, log logrus.FieldLogger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    "order-completed",
		GroupID:  "cart-service-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{repo: repo, reader: reader, cache: cache, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.getMessagesAndEmptyCart(ctx)
	}
}

func (p *Poller) Close() {
	err := p.reader.Close()
	if err != nil {
		p.log.WithError(err).Error("error closing reader")
	}
}

func (p *Poller) getMessagesAndEmptyCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		p.log.WithError(err).Error("error reading message")
		return
	}

	var payload map[string]interface{}
	if errUnMarshal := json.Unmarshal(m.Value, &payload); errUnMarshal != nil {
		p.log.WithError(errUnMarshal).Error("error parsing message")
		return
	}
	ownerID, ok := payload["owner_id"].(string)
	if !ok {
		p.log.Error("missing or invalid owner_id")
		return
	}

	errDelete := p.repo.DeleteCart(ctx, ownerID)
	if errDelete != nil && !errors.Is(errDelete, r.ErrCartNotFound) {
		p.log.WithError(errDelete).Error("failed to delete cart")
	}

	errCacheDelete := p.cache.Delete(ctx, ownerID)
	if errCacheDelete != nil {
		p.log.WithError(errCacheDelete).Error("failed to delete cache")
	}
}
