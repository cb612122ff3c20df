package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultSMSEndpoint = "https://api.mobizon.kz/service/message/sendsmsmessage"

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// SMSClient sends SMS through the provider's HTTP API. With DryRun set (or no
// API key) it logs instead of calling out, which keeps local flows working
// without provider credentials.
type SMSClient struct {
	APIKey   string
	Sender   string
	Endpoint string
	DryRun   bool

	httpClient *http.Client
}

// NewSMSClient creates a new SMS client
func NewSMSClient(apiKey, sender string, dryRun bool) *SMSClient {
	return &SMSClient{
		APIKey:     apiKey,
		Sender:     sender,
		Endpoint:   defaultSMSEndpoint,
		DryRun:     dryRun,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendSMSResponse struct {
	Code int `json:"code"`
	Data struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

// SendSMS sends the message to the phone number, or logs it in dry-run mode.
func (c *SMSClient) SendSMS(ctx context.Context, phone, message string) error {
	if c.DryRun || c.APIKey == "" {
		log.Printf("[sms][dry-run] to=%s sender=%q", maskPhone(phone), c.Sender)
		return nil
	}

	form := url.Values{
		"apiKey":    {c.APIKey},
		"recipient": {phone},
		"text":      {message},
	}
	if c.Sender != "" {
		form.Set("from", c.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read SMS response: %w", err)
	}

	var result sendSMSResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse SMS response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("sms provider returned error code %d", result.Code)
	}
	log.Printf("[sms] sent to=%s messageID=%s", maskPhone(phone), result.Data.MessageID)
	return nil
}

// maskPhone masks a phone number for logging (e.g., +49******89)
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
