package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/remesaops/remesas-backend/internal/models"
)

func (q *Queries) InsertInternalNotification(ctx context.Context, n models.InternalNotification) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO internal_notifications (recipient_id, actor_id, verb, message, link, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		n.RecipientID, n.ActorID, n.Verb, n.Message, n.Link, n.Level)
	if err != nil {
		return fmt.Errorf("insert internal notification: %w", err)
	}
	return nil
}

func (q *Queries) ListInternalNotifications(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int32) ([]models.InternalNotification, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, recipient_id, actor_id, verb, message, link, level, created_at, read_at
		FROM internal_notifications
		WHERE recipient_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list internal notifications: %w", err)
	}
	defer rows.Close()

	var out []models.InternalNotification
	for rows.Next() {
		var n models.InternalNotification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Verb, &n.Message, &n.Link, &n.Level, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("scan internal notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q *Queries) MarkNotificationRead(ctx context.Context, id int64, recipientID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE internal_notifications SET read_at = NOW()
		WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`, id, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark notification read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CountInternalNotifications(ctx context.Context, recipientID uuid.UUID, verb string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM internal_notifications WHERE recipient_id = $1 AND verb = $2`,
		recipientID, verb).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count internal notifications: %w", err)
	}
	return n, nil
}

const extLogColumns = `id, kind, recipient_name, recipient_phone, message, status,
	carrier_response, remittance_id, payout_id, created_at, updated_at`

func scanExtLog(row interface{ Scan(...any) error }) (models.ExternalNotificationLog, error) {
	var l models.ExternalNotificationLog
	err := row.Scan(&l.ID, &l.Kind, &l.RecipientName, &l.RecipientPhone, &l.Message, &l.Status,
		&l.CarrierResponse, &l.RemittanceID, &l.PayoutID, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// InsertExternalLog records an outbound message in status=pending and returns
// the log id.
func (q *Queries) InsertExternalLog(ctx context.Context, l models.ExternalNotificationLog) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO external_notification_log
			(kind, recipient_name, recipient_phone, message, status, remittance_id, payout_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, NOW(), NOW())
		RETURNING id`,
		l.Kind, l.RecipientName, l.RecipientPhone, l.Message, l.RemittanceID, l.PayoutID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert external log: %w", err)
	}
	return id, nil
}

func (q *Queries) UpdateExternalLogStatus(ctx context.Context, id int64, status string, response *string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE external_notification_log SET status = $1, carrier_response = $2, updated_at = NOW()
		WHERE id = $3`, status, response, id)
	if err != nil {
		return 0, fmt.Errorf("update external log status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) GetExternalLog(ctx context.Context, id int64) (models.ExternalNotificationLog, error) {
	row := q.db.QueryRow(ctx, `SELECT `+extLogColumns+` FROM external_notification_log WHERE id = $1`, id)
	return scanExtLog(row)
}

func (q *Queries) ListExternalLogs(ctx context.Context, status string, limit, offset int32) ([]models.ExternalNotificationLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+extLogColumns+` FROM external_notification_log
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list external logs: %w", err)
	}
	defer rows.Close()

	var out []models.ExternalNotificationLog
	for rows.Next() {
		l, err := scanExtLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan external log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const recipientColumns = `id, name, phone, active, callmebot_key, currencies, events`

func (q *Queries) ListActiveRecipients(ctx context.Context) ([]models.NotificationRecipient, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+recipientColumns+` FROM notification_recipients WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list active recipients: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationRecipient
	for rows.Next() {
		var r models.NotificationRecipient
		if err := rows.Scan(&r.ID, &r.Name, &r.Phone, &r.Active, &r.CallMeBotKey, &r.Currencies, &r.Events); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) GetRecipientByPhone(ctx context.Context, phone string) (models.NotificationRecipient, error) {
	var r models.NotificationRecipient
	err := q.db.QueryRow(ctx,
		`SELECT `+recipientColumns+` FROM notification_recipients WHERE phone = $1`, phone).
		Scan(&r.ID, &r.Name, &r.Phone, &r.Active, &r.CallMeBotKey, &r.Currencies, &r.Events)
	return r, err
}

func (q *Queries) UpsertRecipient(ctx context.Context, r models.NotificationRecipient) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO notification_recipients (id, name, phone, active, callmebot_key, currencies, events)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			active = EXCLUDED.active,
			callmebot_key = EXCLUDED.callmebot_key,
			currencies = EXCLUDED.currencies,
			events = EXCLUDED.events`,
		r.ID, r.Name, r.Phone, r.Active, r.CallMeBotKey, r.Currencies, r.Events)
	if err != nil {
		return fmt.Errorf("upsert recipient: %w", err)
	}
	return nil
}

// GetCarrierConfig loads the single-row outbound configuration. A zero-value
// config (disabled) is returned when the row has never been saved.
func (q *Queries) GetCarrierConfig(ctx context.Context) (models.CarrierConfig, error) {
	var c models.CarrierConfig
	err := q.db.QueryRow(ctx, `
		SELECT enabled, notify_remittances, notify_payouts, notify_state_changes, notify_edits,
			callmebot_key, twilio_sid, twilio_token, twilio_from, whatsapp_token, whatsapp_phone_id
		FROM carrier_config WHERE id = 1`).
		Scan(&c.Enabled, &c.NotifyRemittances, &c.NotifyPayouts, &c.NotifyStateChanges, &c.NotifyEdits,
			&c.CallMeBotKey, &c.TwilioSID, &c.TwilioToken, &c.TwilioFrom, &c.WhatsAppToken, &c.WhatsAppPhoneID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CarrierConfig{}, nil
	}
	if err != nil {
		return models.CarrierConfig{}, fmt.Errorf("get carrier config: %w", err)
	}
	return c, nil
}

func (q *Queries) SaveCarrierConfig(ctx context.Context, c models.CarrierConfig) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO carrier_config
			(id, enabled, notify_remittances, notify_payouts, notify_state_changes, notify_edits,
			callmebot_key, twilio_sid, twilio_token, twilio_from, whatsapp_token, whatsapp_phone_id)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			notify_remittances = EXCLUDED.notify_remittances,
			notify_payouts = EXCLUDED.notify_payouts,
			notify_state_changes = EXCLUDED.notify_state_changes,
			notify_edits = EXCLUDED.notify_edits,
			callmebot_key = EXCLUDED.callmebot_key,
			twilio_sid = EXCLUDED.twilio_sid,
			twilio_token = EXCLUDED.twilio_token,
			twilio_from = EXCLUDED.twilio_from,
			whatsapp_token = EXCLUDED.whatsapp_token,
			whatsapp_phone_id = EXCLUDED.whatsapp_phone_id`,
		c.Enabled, c.NotifyRemittances, c.NotifyPayouts, c.NotifyStateChanges, c.NotifyEdits,
		c.CallMeBotKey, c.TwilioSID, c.TwilioToken, c.TwilioFrom, c.WhatsAppToken, c.WhatsAppPhoneID)
	if err != nil {
		return fmt.Errorf("save carrier config: %w", err)
	}
	return nil
}
