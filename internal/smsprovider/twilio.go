package smsprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grantdelgado/unveil-sub008/pkg/config"
)

// TwilioSender submits messages through the Twilio-compatible Messages API.
type TwilioSender struct {
	client     *http.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
	Enabled    bool
}

func NewTwilioSender(cfg config.SMSConfig) *TwilioSender {
	return &TwilioSender{
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		Enabled:    cfg.AccountSID != "" && cfg.AuthToken != "" && cfg.FromNumber != "",
	}
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *TwilioSender) Send(ctx context.Context, toPhoneE164, body string) (*SendResult, error) {
	if !s.Enabled {
		return nil, errors.New("sms sender disabled (missing SMS_ACCOUNT_SID, SMS_AUTH_TOKEN or SMS_FROM_NUMBER)")
	}

	form := url.Values{}
	form.Set("To", toPhoneE164)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier request failed: %w", err)
	}
	defer res.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	var parsed twilioResponse
	if err := json.Unmarshal(payload, &parsed); err != nil && res.StatusCode < 300 {
		return nil, fmt.Errorf("carrier response unreadable: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		return nil, fmt.Errorf("carrier rejected message: status=%d code=%d %s", res.StatusCode, parsed.Code, msg)
	}

	return &SendResult{ProviderID: parsed.SID, Status: parsed.Status}, nil
}
