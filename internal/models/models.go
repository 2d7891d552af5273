package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is a registry entry. Rates are units per USD and administrator
// entered; for USD both rates are 1.
type Currency struct {
	Code                string          `json:"code"`
	Name                string          `json:"name"`
	RateCurrent         decimal.Decimal `json:"rate_current"`
	RateCommercial      decimal.Decimal `json:"rate_commercial"`
	Kind                string          `json:"kind"` // "cash" or "transfer"
	Enabled             bool            `json:"enabled"`
	FloorBalance        decimal.Decimal `json:"floor_balance"`
	FloorAlertThreshold decimal.Decimal `json:"floor_alert_threshold"`
	FloorAlertSent      bool            `json:"floor_alert_sent"`
	FloorAlertSentAt    *time.Time      `json:"floor_alert_sent_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ValuationVariant is a named rate table alternative assignable per user.
type ValuationVariant struct {
	Name      string `json:"name"`
	Position  int    `json:"position"`
	Enabled   bool   `json:"enabled"`
	IsDefault bool   `json:"is_default"`
}

type User struct {
	ID                  uuid.UUID       `json:"id"`
	Username            string          `json:"username"`
	Active              bool            `json:"active"`
	Role                string          `json:"role"`
	Variant             *string         `json:"variant,omitempty"`
	PermittedCurrencies []string        `json:"permitted_currencies"` // empty = all enabled
	BalanceCached       decimal.Decimal `json:"balance_cached"`
	CreatedAt           time.Time       `json:"created_at"`
}

// IsAdmin reports whether the user bypasses currency restrictions and may
// delete or reassign transactions.
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// MayOperate reports whether the user is permitted to operate in the
// currency. An empty permit set means all enabled currencies.
func (u *User) MayOperate(currency string) bool {
	if u.IsAdmin() || len(u.PermittedCurrencies) == 0 {
		return true
	}
	for _, c := range u.PermittedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// Remittance is an inbound recorded operation owned by a gestor. RateSnapshot
// and USDSnapshot are pinned at creation/edit time; legacy rows created
// before pinning existed carry null snapshots until lazily backfilled.
type Remittance struct {
	ID           uuid.UUID           `json:"id"`
	OpID         string              `json:"op_id"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     string              `json:"currency"`
	Kind         string              `json:"kind"`
	Receiver     *string             `json:"receiver,omitempty"`
	Notes        *string             `json:"notes,omitempty"`
	EvidenceRef  *string             `json:"evidence_ref,omitempty"`
	OwnerID      uuid.UUID           `json:"owner_id"`
	State        string              `json:"state"`
	RateSnapshot decimal.NullDecimal `json:"rate_snapshot"`
	USDSnapshot  decimal.NullDecimal `json:"usd_snapshot"`
	CreatedAt    time.Time           `json:"created_at"`

	Edited   bool       `json:"edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
	EditorID *uuid.UUID `json:"editor_id,omitempty"`

	StaleNotifiedAt *time.Time `json:"stale_notified_at,omitempty"`
	AutoCancelled   bool       `json:"auto_cancelled"`
	AutoCancelledAt *time.Time `json:"auto_cancelled_at,omitempty"`
	ReactivatedFrom *uuid.UUID `json:"reactivated_from,omitempty"`
}

// Payout is an outbound disbursement. A payout with RemittanceID set is a
// LinkedPayout bound to that remittance.
type Payout struct {
	ID           uuid.UUID           `json:"id"`
	OpID         string              `json:"op_id"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     string              `json:"currency"`
	Kind         string              `json:"kind"`
	Recipient    *string             `json:"recipient,omitempty"`
	Phone        *string             `json:"phone,omitempty"`
	Address      *string             `json:"address,omitempty"`
	IDDocument   *string             `json:"id_document,omitempty"`
	Card         *string             `json:"card,omitempty"`
	RemittanceID *uuid.UUID          `json:"remittance_id,omitempty"`
	OwnerID      uuid.UUID           `json:"owner_id"`
	State        string              `json:"state"`
	RateSnapshot decimal.NullDecimal `json:"rate_snapshot"`
	USDSnapshot  decimal.NullDecimal `json:"usd_snapshot"`
	CreatedAt    time.Time           `json:"created_at"`

	Edited   bool       `json:"edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
	EditorID *uuid.UUID `json:"editor_id,omitempty"`

	StaleNotifiedAt *time.Time `json:"stale_notified_at,omitempty"`
	AutoCancelled   bool       `json:"auto_cancelled"`
	AutoCancelledAt *time.Time `json:"auto_cancelled_at,omitempty"`
	ReactivatedFrom *uuid.UUID `json:"reactivated_from,omitempty"`
}

// Linked reports whether the payout is bound to a remittance.
func (p *Payout) Linked() bool {
	return p.RemittanceID != nil
}

type StateHistoryEntry struct {
	ID        int64           `json:"id"`
	OpType    string          `json:"op_type"` // "remittance" or "payout"
	OpID      uuid.UUID       `json:"op_id"`
	Kind      string          `json:"kind"` // processed, cancelled, succeeded, error
	Amount    decimal.Decimal `json:"amount"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	Detail    string          `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

type InternalNotification struct {
	ID          int64      `json:"id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	ActorID     *uuid.UUID `json:"actor_id,omitempty"`
	Verb        string     `json:"verb"`
	Message     string     `json:"message"`
	Link        *string    `json:"link,omitempty"`
	Level       string     `json:"level"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type ExternalNotificationLog struct {
	ID              int64      `json:"id"`
	Kind            string     `json:"kind"`
	RecipientName   string     `json:"recipient_name"`
	RecipientPhone  string     `json:"recipient_phone"`
	Message         string     `json:"message"`
	Status          string     `json:"status"` // pending, sent, failed
	CarrierResponse *string    `json:"carrier_response,omitempty"`
	RemittanceID    *uuid.UUID `json:"remittance_id,omitempty"`
	PayoutID        *uuid.UUID `json:"payout_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NotificationRecipient is an external WhatsApp subscriber. Events holds the
// subscribed event tags; Currencies restricts delivery to a currency subset
// (empty = all).
type NotificationRecipient struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Active       bool      `json:"active"`
	CallMeBotKey *string   `json:"callmebot_key,omitempty"`
	Currencies   []string  `json:"currencies"`
	Events       []string  `json:"events"`
}

// SubscribedTo reports whether the recipient opted into the event tag.
func (r *NotificationRecipient) SubscribedTo(tag string) bool {
	for _, e := range r.Events {
		if e == tag {
			return true
		}
	}
	return false
}

// WantsCurrency reports whether the recipient's currency filter admits the
// currency. An empty filter admits everything, including currency-less
// events.
func (r *NotificationRecipient) WantsCurrency(currency string) bool {
	if len(r.Currencies) == 0 || currency == "" {
		return true
	}
	for _, c := range r.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// CarrierConfig is the single-row outbound notification configuration.
type CarrierConfig struct {
	Enabled            bool   `json:"enabled"`
	NotifyRemittances  bool   `json:"notify_remittances"`
	NotifyPayouts      bool   `json:"notify_payouts"`
	NotifyStateChanges bool   `json:"notify_state_changes"`
	NotifyEdits        bool   `json:"notify_edits"`
	CallMeBotKey       string `json:"callmebot_key"`
	TwilioSID          string `json:"twilio_sid"`
	TwilioToken        string `json:"twilio_token"`
	TwilioFrom         string `json:"twilio_from"`
	WhatsAppToken      string `json:"whatsapp_token"`
	WhatsAppPhoneID    string `json:"whatsapp_phone_id"`
}
