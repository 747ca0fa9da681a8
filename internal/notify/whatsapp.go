package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSendTimeout = 30 * time.Second

// WhatsAppClient talks to the WhatsApp bridge microservice over HTTP.
type WhatsAppClient struct {
	baseURL string
	client  *http.Client
}

// NewWhatsAppClient creates a client for the bridge at baseURL.
func NewWhatsAppClient(baseURL string) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultSendTimeout},
	}
}

type sendMessageRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// SendMessage implements the messaging half of the Sink contract.
func (w *WhatsAppClient) SendMessage(ctx context.Context, phoneNumber, text string) error {
	payload, err := json.Marshal(sendMessageRequest{PhoneNumber: phoneNumber, Message: text})
	if err != nil {
		return fmt.Errorf("failed to encode whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/whatsapp/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Dispatcher bundles the email and messaging channels into one Sink.
type Dispatcher struct {
	Email    *SMTPSender
	WhatsApp *WhatsAppClient
}

// SendEmail forwards to the SMTP sender.
func (d *Dispatcher) SendEmail(ctx context.Context, recipients []string, subject, body string) error {
	return d.Email.SendEmail(ctx, recipients, subject, body)
}

// SendMessage forwards to the WhatsApp client.
func (d *Dispatcher) SendMessage(ctx context.Context, phoneNumber, text string) error {
	return d.WhatsApp.SendMessage(ctx, phoneNumber, text)
}
