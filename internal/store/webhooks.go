package store

import (
	"context"
	"time"

	"github.com/codr1/quadra/internal/models"
)

type WebhookRepository interface {
	InsertWebhookDelivery(ctx context.Context, arg models.WebhookDelivery) (bool, error)
	SetWebhookOutcome(ctx context.Context, deliveryID, outcome string) error
	GetWebhookDelivery(ctx context.Context, deliveryID string) (models.WebhookDelivery, error)
}

// InsertWebhookDelivery records a delivery id and reports false when the id was
// already seen.
func (q *Queries) InsertWebhookDelivery(ctx context.Context, arg models.WebhookDelivery) (bool, error) {
	receivedAt := arg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	n, err := rowsAffected(q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO webhook_deliveries (delivery_id, event_type, external_id, outcome, received_at) VALUES (?, ?, ?, ?, ?)`,
		arg.DeliveryID, arg.EventType, arg.ExternalID, arg.Outcome, Timestamp(receivedAt),
	))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q *Queries) SetWebhookOutcome(ctx context.Context, deliveryID, outcome string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE webhook_deliveries SET outcome = ? WHERE delivery_id = ?`, outcome, deliveryID)
	return err
}

func (q *Queries) GetWebhookDelivery(ctx context.Context, deliveryID string) (models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	err := q.db.QueryRowContext(ctx,
		`SELECT delivery_id, event_type, external_id, outcome, received_at FROM webhook_deliveries WHERE delivery_id = ?`,
		deliveryID,
	).Scan(&d.DeliveryID, &d.EventType, &d.ExternalID, &d.Outcome, &d.ReceivedAt)
	return d, err
}
