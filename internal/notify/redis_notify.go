package notify

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"laplayita/backend/internal/domain"
)

const defaultOutboxList = "laplayita:notifications"

// RedisNotifier pushes notification envelopes onto a Redis list. A separate
// worker drains the list and does the actual delivery (email, webhook).
type RedisNotifier struct {
	client *redis.Client
	list   string
}

func NewRedisNotifier(addr string, password string, db int) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisNotifier{client: client, list: defaultOutboxList}
}

func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func (n *RedisNotifier) push(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return n.client.LPush(ctx, n.list, payload).Err()
}

func (n *RedisNotifier) SupplierOrderRequested(ctx context.Context, order domain.RestockOrder, supplier domain.Supplier) error {
	return n.push(ctx, newEnvelope(KindSupplierOrder, SupplierOrderPayload{Order: order, Supplier: supplier}))
}

func (n *RedisNotifier) ReceptionDiscrepancies(ctx context.Context, orderID string, discrepancies []domain.Discrepancy) error {
	return n.push(ctx, newEnvelope(KindDiscrepancy, DiscrepancyPayload{OrderID: orderID, Discrepancies: discrepancies}))
}
