package carrier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const callMeBotBaseURL = "https://api.callmebot.com/whatsapp.php"

// CallMeBot delivers via the CallMeBot personal WhatsApp gateway. Each
// recipient authorizes the bot once and gets an individual API key; a
// recipient without a key falls back to the account-wide key.
type CallMeBot struct {
	client     *http.Client
	baseURL    string
	defaultKey string
}

func NewCallMeBot(defaultKey string) *CallMeBot {
	return &CallMeBot{
		client:     &http.Client{Timeout: 15 * time.Second},
		baseURL:    callMeBotBaseURL,
		defaultKey: defaultKey,
	}
}

// WithBaseURL points the carrier at a different endpoint. Tests use this.
func (c *CallMeBot) WithBaseURL(base string) *CallMeBot {
	c.baseURL = base
	return c
}

func (c *CallMeBot) Name() string { return "callmebot" }

func (c *CallMeBot) Send(ctx context.Context, to Recipient, text string) (string, error) {
	key := to.CallMeBotKey
	if key == "" {
		key = c.defaultKey
	}
	if key == "" {
		return "", ErrNotConfigured
	}

	q := url.Values{}
	q.Set("phone", to.Phone)
	q.Set("text", text)
	q.Set("apikey", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build callmebot request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("callmebot send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reply := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK {
		return reply, fmt.Errorf("callmebot status %d: %s", resp.StatusCode, reply)
	}
	// The API answers 200 with an error text on bad keys and unverified
	// phones, so the body has to be inspected too.
	if strings.Contains(strings.ToLower(reply), "error") {
		return reply, fmt.Errorf("callmebot rejected message: %s", reply)
	}
	return reply, nil
}
