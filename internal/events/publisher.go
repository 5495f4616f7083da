package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
)

// orderEvent — событие жизненного цикла заказа для внешних потребителей
// (аналитика, нотификации, биллинг).
type orderEvent struct {
	OrderID      string    `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	BuyerID      string    `json:"buyer_id"`
	SellerID     string    `json:"seller_id"`
	Status       string    `json:"status"`
	EscrowStatus string    `json:"escrow_status"`
	AmountCents  int64     `json:"amount_cents"`
	Currency     string    `json:"currency"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// RabbitPublisher публикует события заказов в fanout-обменник RabbitMQ.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

// NewRabbitPublisher подключается к брокеру и объявляет обменник.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: не удалось подключиться к rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: не удалось открыть канал: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: не удалось объявить обменник: %w", err)
	}

	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

// PublishOrderEvent отправляет событие по заказу с заданным ключом маршрутизации.
func (p *RabbitPublisher) PublishOrderEvent(ctx context.Context, routingKey string, order *models.Order) error {
	body, err := json.Marshal(orderEvent{
		OrderID:      order.ID.String(),
		OrderNumber:  order.OrderNumber,
		BuyerID:      order.BuyerID.String(),
		SellerID:     order.SellerID.String(),
		Status:       string(order.Status),
		EscrowStatus: string(order.EscrowStatus),
		AmountCents:  order.AmountCents,
		Currency:     order.Currency,
		OccurredAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("events: не удалось сериализовать событие: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: не удалось открыть канал: %w", err)
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}
