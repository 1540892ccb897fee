package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher what MQTTNotifier needs from common/mqtt.Client
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier publishes to <prefix>/<restaurant_id>/orders for kitchen displays
type MQTTNotifier struct {
	client Publisher
	prefix string
	qos    byte
}

func NewMQTTNotifier(client Publisher, topicPrefix string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{client: client, prefix: topicPrefix, qos: qos}
}

func (n *MQTTNotifier) Name() string { return "mqtt" }

// Topic for a restaurant
func (n *MQTTNotifier) Topic(restaurantID string) string {
	return fmt.Sprintf("%s/%s/orders", n.prefix, restaurantID)
}

func (n *MQTTNotifier) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.client.Publish(n.Topic(ev.RestaurantID), n.qos, false, payload)
}
