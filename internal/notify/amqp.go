package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel the part of *amqp.Channel used for publishing
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes persistent JSON messages to a topic exchange with routing
// key "<event type>.<restaurant id>".
type AMQPNotifier struct {
	ch       Channel
	exchange string
}

func NewAMQPNotifier(ch Channel, exchange string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange}
}

// DeclareExchange declares the durable topic exchange events are published to
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

func (n *AMQPNotifier) Name() string { return "amqp" }

func (n *AMQPNotifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.ch.PublishWithContext(ctx,
		n.exchange,
		ev.Type+"."+ev.RestaurantID,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    ev.OrderID + ":" + ev.Status,
			Body:         body,
			Timestamp:    time.Now(),
		})
}
