package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const graphAPIBase = "https://graph.facebook.com/v19.0"

// WhatsAppBusiness delivers through the Meta WhatsApp Business Cloud API.
type WhatsAppBusiness struct {
	client  *http.Client
	baseURL string
	token   string
	phoneID string
}

func NewWhatsAppBusiness(token, phoneID string) *WhatsAppBusiness {
	return &WhatsAppBusiness{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: graphAPIBase,
		token:   token,
		phoneID: phoneID,
	}
}

func (w *WhatsAppBusiness) WithBaseURL(base string) *WhatsAppBusiness {
	w.baseURL = base
	return w
}

func (w *WhatsAppBusiness) Name() string { return "whatsapp_business" }

type waMessageRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type waMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (w *WhatsAppBusiness) Send(ctx context.Context, to Recipient, text string) (string, error) {
	if w.token == "" || w.phoneID == "" {
		return "", ErrNotConfigured
	}

	payload := waMessageRequest{
		MessagingProduct: "whatsapp",
		To:               to.Phone,
		Type:             "text",
	}
	payload.Text.Body = text

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	var parsed waMessageResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		detail := string(body)
		if parsed.Error != nil {
			detail = parsed.Error.Message
		}
		return detail, fmt.Errorf("whatsapp status %d: %s", resp.StatusCode, detail)
	}
	if len(parsed.Messages) == 0 {
		return string(body), fmt.Errorf("whatsapp send: response without message id")
	}
	return parsed.Messages[0].ID, nil
}
