package carrier

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio delivers through the Twilio WhatsApp messaging API.
type Twilio struct {
	client *twilio.RestClient
	from   string
}

func NewTwilio(sid, token, from string) *Twilio {
	if sid == "" || token == "" || from == "" {
		return &Twilio{}
	}
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: sid,
			Password: token,
		}),
		from: from,
	}
}

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) Send(ctx context.Context, to Recipient, text string) (string, error) {
	if t.client == nil {
		return "", ErrNotConfigured
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(whatsAppAddr(to.Phone))
	params.SetFrom(whatsAppAddr(t.from))
	params.SetBody(text)

	msg, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send: %w", err)
	}
	if msg.Sid == nil {
		return "", fmt.Errorf("twilio send: response without sid")
	}
	return *msg.Sid, nil
}

func whatsAppAddr(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}
