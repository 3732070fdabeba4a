package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/cartstore/internal/domain"
	pkgkafka "github.com/utafrali/cartstore/pkg/kafka"
)

// Kafka topic constants for cart domain events.
var (
	TopicCartUpdated = pkgkafka.Topic("cart", "updated")
	TopicCartCleared = pkgkafka.Topic("cart", "cleared")
)

// Event types carried in the envelope.
const (
	EventTypeCartUpdated = "cart.updated"
	EventTypeCartCleared = "cart.cleared"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// SourceCartStore identifies events originating from the cart store.
const SourceCartStore = "cart-store"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	CartKey    string         `json:"cart_key"`
	Lines      []CartLineData `json:"lines"`
	TotalItems int            `json:"total_items"`
}

// CartLineData is the line payload within cart events.
type CartLineData struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Stock     int     `json:"stock"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	CartKey string `json:"cart_key"`
}

// Publisher is the subset of the Kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart store.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// CartUpdated publishes a cart.updated event.
func (p *Producer) CartUpdated(ctx context.Context, key string, lines domain.Lines) error {
	items := make([]CartLineData, len(lines))
	for i, l := range lines {
		items[i] = CartLineData{
			ProductID: l.ID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Stock:     l.Stock,
		}
	}

	data := CartUpdatedData{
		CartKey:    key,
		Lines:      items,
		TotalItems: lines.TotalItems(),
	}

	event, err := pkgkafka.NewEvent(EventTypeCartUpdated, key, AggregateTypeCart, SourceCartStore, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("cart_key", key),
		slog.Int("total_items", data.TotalItems),
	)

	return nil
}

// CartCleared publishes a cart.cleared event.
func (p *Producer) CartCleared(ctx context.Context, key string) error {
	event, err := pkgkafka.NewEvent(EventTypeCartCleared, key, AggregateTypeCart, SourceCartStore, CartClearedData{CartKey: key})
	if err != nil {
		return fmt.Errorf("create cart.cleared event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCleared, event); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.cleared event",
		slog.String("cart_key", key),
	)

	return nil
}
