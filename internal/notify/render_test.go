package notify

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/events"
	"github.com/remesaops/remesas-backend/internal/models"
)

var renderAt = time.Date(2025, 8, 29, 15, 30, 45, 0, time.UTC)

func baseEvent(tag, opType string) events.Event {
	return events.Event{
		Tag:       tag,
		OpType:    opType,
		OpRef:     "REM-08/29-T100-153045",
		OwnerName: "maria",
		Currency:  "EUR",
		Amount:    decimal.RequireFromString("90"),
		At:        renderAt,
	}
}

func TestRenderMessages(t *testing.T) {
	r := NewRenderer(time.UTC)

	cases := []struct {
		tag    string
		opType string
		want   string
	}{
		{domain.EventRemittanceNew, domain.OpTypeRemittance,
			"New remittance REM-08/29-T100-#153045 of 90.00 EUR by maria [29/08/2025 15:30]"},
		{domain.EventRemittanceConfirmed, domain.OpTypeRemittance,
			"Remittance REM-08/29-T100-#153045 of 90.00 EUR confirmed for maria [29/08/2025 15:30]"},
		{domain.EventRemittanceCancelled, domain.OpTypeRemittance,
			"Remittance REM-08/29-T100-#153045 of 90.00 EUR cancelled for maria [29/08/2025 15:30]"},
		{domain.EventPayoutNew, domain.OpTypePayout,
			"New payout REM-08/29-T100-#153045 of 90.00 EUR by maria [29/08/2025 15:30]"},
		{domain.EventPayoutNew, domain.OpTypeLinkedPayout,
			"New linked payout REM-08/29-T100-#153045 of 90.00 EUR by maria [29/08/2025 15:30]"},
		{domain.EventPayoutConfirmed, domain.OpTypeLinkedPayout,
			"Linked payout REM-08/29-T100-#153045 of 90.00 EUR confirmed for maria [29/08/2025 15:30]"},
		{domain.EventRemittancePending30h, domain.OpTypeRemittance,
			"Remittance REM-08/29-T100-#153045 of 90.00 EUR for maria has been pending for over 30 hours [29/08/2025 15:30]"},
	}
	for _, tc := range cases {
		ev := baseEvent(tc.tag, tc.opType)
		assert.Equal(t, tc.want, r.Render(ev), "tag %s opType %s", tc.tag, tc.opType)
	}
}

func TestRenderSuffixes(t *testing.T) {
	r := NewRenderer(time.UTC)

	ev := baseEvent(domain.EventRemittanceDeleted, domain.OpTypeRemittance)
	change := decimal.RequireFromString("-100")
	ev.BalanceChange = &change
	ev.Notes = "duplicate entry"
	assert.Equal(t,
		"Remittance REM-08/29-T100-#153045 of 90.00 EUR deleted for maria. Balance change: -100.00 USD (duplicate entry) [29/08/2025 15:30]",
		r.Render(ev))
}

func TestRenderLowFloor(t *testing.T) {
	r := NewRenderer(time.UTC)

	ev := events.Event{
		Tag:      domain.EventCurrencyLowFloor,
		Currency: "MLC",
		Amount:   decimal.RequireFromString("70"),
		Notes:    "floor 70.00 below threshold 100.00",
		At:       renderAt,
	}
	assert.Equal(t,
		"Low cash floor for MLC: 70.00 remaining (floor 70.00 below threshold 100.00) [29/08/2025 15:30]",
		r.Render(ev))
}

func TestRenderLocalZone(t *testing.T) {
	// Havana is UTC-4 in late August.
	loc := time.FixedZone("America/Havana", -4*3600)
	r := NewRenderer(loc)
	msg := r.Render(baseEvent(domain.EventRemittanceNew, domain.OpTypeRemittance))
	assert.Contains(t, msg, "[29/08/2025 11:30]")
}

func TestRenderUnknownTagFallsBack(t *testing.T) {
	r := NewRenderer(nil)
	msg := r.Render(baseEvent("remittance_rewound", domain.OpTypeRemittance))
	assert.Contains(t, msg, "remittance_rewound")
	assert.Contains(t, msg, "maria")
}

func TestLevel(t *testing.T) {
	assert.Equal(t, domain.LevelInfo, Level(domain.EventRemittanceNew))
	assert.Equal(t, domain.LevelInfo, Level(domain.EventPayoutConfirmed))
	assert.Equal(t, domain.LevelWarning, Level(domain.EventRemittanceCancelled))
	assert.Equal(t, domain.LevelWarning, Level(domain.EventPayoutDeleted))
	assert.Equal(t, domain.LevelWarning, Level(domain.EventRemittancePending30h))
	assert.Equal(t, domain.LevelWarning, Level(domain.EventCurrencyLowFloor))
}

func TestCategoryToggles(t *testing.T) {
	cfg := models.CarrierConfig{
		NotifyRemittances:  true,
		NotifyPayouts:      false,
		NotifyStateChanges: true,
		NotifyEdits:        false,
	}
	assert.True(t, categoryEnabled(cfg, domain.EventRemittanceNew))
	assert.False(t, categoryEnabled(cfg, domain.EventPayoutNew))
	assert.False(t, categoryEnabled(cfg, domain.EventRemittanceEdited))
	assert.False(t, categoryEnabled(cfg, domain.EventPayoutEdited))
	assert.True(t, categoryEnabled(cfg, domain.EventRemittanceConfirmed))
	assert.True(t, categoryEnabled(cfg, domain.EventRemittancePending30h))
	assert.True(t, categoryEnabled(cfg, domain.EventCurrencyLowFloor))
}
