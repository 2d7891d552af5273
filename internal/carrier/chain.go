package carrier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/models"
)

// Chain tries carriers in priority order until one delivers. Unconfigured
// carriers are skipped silently; real delivery failures are logged and the
// next carrier is tried.
type Chain struct {
	carriers []Carrier
}

// NewChain builds the delivery chain from the stored carrier settings.
// Priority order is CallMeBot, then Twilio, then WhatsApp Business.
func NewChain(cfg models.CarrierConfig) *Chain {
	return &Chain{carriers: []Carrier{
		NewCallMeBot(cfg.CallMeBotKey),
		NewTwilio(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom),
		NewWhatsAppBusiness(cfg.WhatsAppToken, cfg.WhatsAppPhoneID),
	}}
}

// NewChainOf builds a chain from explicit carriers. Tests use this.
func NewChainOf(carriers ...Carrier) *Chain {
	return &Chain{carriers: carriers}
}

// Send attempts delivery and returns the name of the carrier that succeeded
// together with its response.
func (c *Chain) Send(ctx context.Context, to Recipient, text string) (string, string, error) {
	var lastErr error
	for _, carrier := range c.carriers {
		resp, err := carrier.Send(ctx, to, text)
		if err == nil {
			return carrier.Name(), resp, nil
		}
		if errors.Is(err, ErrNotConfigured) {
			continue
		}
		lastErr = err
		zap.L().Warn("carrier delivery failed, trying next",
			zap.String("carrier", carrier.Name()),
			zap.String("recipient", to.Name),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = ErrNotConfigured
	}
	return "", "", fmt.Errorf("all carriers failed: %w", lastErr)
}
