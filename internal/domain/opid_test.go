package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBuildOperationID(t *testing.T) {
	at := time.Date(2025, 8, 29, 15, 30, 45, 0, time.UTC)

	id := BuildOperationID(PrefixRemittance, KindTransfer, decimal.RequireFromString("100.50"), at)
	assert.Equal(t, "REM-08/29-T100-153045", id)

	id = BuildOperationID(PrefixPayout, KindCash, decimal.RequireFromString("90"), at)
	assert.Equal(t, "PAG-08/29-E90-153045", id)

	id = BuildOperationID(PrefixLinkedPayout, KindTransfer, decimal.RequireFromString("0.75"), at)
	assert.Equal(t, "PAGR-08/29-T75-153045", id)
}

func TestDisplayID(t *testing.T) {
	assert.Equal(t, "REM-08/29-T100-#153045", DisplayID("REM-08/29-T100-153045"))
	assert.Equal(t, "#abc", DisplayID("abc"))
}
