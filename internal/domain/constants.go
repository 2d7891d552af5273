package domain

// Operating currency pass-through code. USD operations pin usd_snapshot = amount.
const CurrencyUSD = "USD"

const (
	RoleAdmin     = "admin"
	RoleGestor    = "gestor"
	RoleContable  = "contable"
	RoleDomicilio = "domicilio"
)

const (
	KindTransfer = "transfer"
	KindCash     = "cash"
)

// Operation states. StateConfirmed is terminal for payouts; remittances
// collapse straight into StateCompleted on confirm.
const (
	StatePending   = "pending"
	StateCompleted = "completed"
	StateConfirmed = "confirmed"
	StateCancelled = "cancelled"
)

const (
	OpTypeRemittance   = "remittance"
	OpTypePayout       = "payout"
	OpTypeLinkedPayout = "linked_payout"
)

// State-history record kinds.
const (
	HistoryProcessed = "processed"
	HistoryCancelled = "cancelled"
	HistorySucceeded = "succeeded"
	HistoryError     = "error"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// External notification log statuses.
const (
	ExtStatusPending = "pending"
	ExtStatusSent    = "sent"
	ExtStatusFailed  = "failed"
)

// Valuation variant names. The registry may hold more, these two always exist.
const (
	VariantCurrent    = "current"
	VariantCommercial = "commercial"
)

// Event tags emitted by the state machines, delete operations, the pending
// watchdog and the currency floor monitor.
const (
	EventRemittanceNew         = "remittance_new"
	EventRemittanceEdited      = "remittance_edited"
	EventRemittanceConfirmed   = "remittance_confirmed"
	EventRemittanceCompleted   = "remittance_completed"
	EventRemittanceCancelled   = "remittance_cancelled"
	EventRemittanceDeleted     = "remittance_deleted"
	EventPayoutNew             = "payout_new"
	EventPayoutEdited          = "payout_edited"
	EventPayoutConfirmed       = "payout_confirmed"
	EventPayoutCancelled       = "payout_cancelled"
	EventPayoutDeleted         = "payout_deleted"
	EventRemittancePending30h  = "remittance_pending_30h"
	EventPayoutPending30h      = "payout_pending_30h"
	EventLinkedPayoutPending30 = "linked_payout_pending_30h"
	EventCurrencyLowFloor      = "currency_low_floor"
)

// EventTags lists every tag a notification recipient can subscribe to.
var EventTags = []string{
	EventRemittanceNew,
	EventRemittanceEdited,
	EventRemittanceConfirmed,
	EventRemittanceCompleted,
	EventRemittanceCancelled,
	EventRemittanceDeleted,
	EventPayoutNew,
	EventPayoutEdited,
	EventPayoutConfirmed,
	EventPayoutCancelled,
	EventPayoutDeleted,
	EventRemittancePending30h,
	EventPayoutPending30h,
	EventLinkedPayoutPending30,
	EventCurrencyLowFloor,
}
