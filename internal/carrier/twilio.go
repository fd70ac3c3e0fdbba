package carrier

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

	"github.com/xonelabs/xonebot/pkg/logging"
)

const twilioDefaultBaseURL = "https://api.twilio.com/2010-04-01"

// countryForPrefix maps dialing prefixes to ISO country codes used by
// carrier search APIs.
var countryForPrefix = map[string]string{
	"+371": "LV",
	"+372": "EE",
	"+370": "LT",
	"+1":   "US",
}

// TwilioConfig controls the Twilio adapter.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// TwilioProvider adapts the Twilio REST API to the Provider contract.
// All network/provider failures are converted into false/zero results; the
// orchestrator never sees a Twilio-specific error shape.
type TwilioProvider struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioProvider creates a configured adapter with sane defaults.
func NewTwilioProvider(cfg TwilioConfig) (*TwilioProvider, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("carrier: twilio credentials are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = twilioDefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioProvider{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) SearchNumbers(ctx context.Context, countryCode, region string) ([]NumberOffer, error) {
	country, ok := countryForPrefix[countryCode]
	if !ok {
		country = "US"
	}
	q := url.Values{}
	if region != "" {
		q.Set("InRegion", region)
	}
	q.Set("VoiceEnabled", "true")

	data, err := p.invoke(ctx, http.MethodGet, fmt.Sprintf("/AvailablePhoneNumbers/%s/Local.json", country), q, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		AvailablePhoneNumbers []struct {
			PhoneNumber  string `json:"phone_number"`
			Region       string `json:"region"`
			Capabilities struct {
				Voice bool `json:"voice"`
				SMS   bool `json:"SMS"`
				MMS   bool `json:"MMS"`
			} `json:"capabilities"`
		} `json:"available_phone_numbers"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("carrier: twilio search decode: %w", err)
	}

	offers := make([]NumberOffer, 0, len(payload.AvailablePhoneNumbers))
	for _, n := range payload.AvailablePhoneNumbers {
		caps := []Capability{}
		if n.Capabilities.Voice {
			caps = append(caps, CapabilityVoice)
		}
		if n.Capabilities.SMS {
			caps = append(caps, CapabilitySMS)
		}
		offers = append(offers, NumberOffer{
			Number:       n.PhoneNumber,
			CountryCode:  countryCode,
			Region:       n.Region,
			Provider:     p.Name(),
			Capabilities: caps,
			MonthlyCost:  15.00,
			SetupCost:    1.00,
		})
	}
	return offers, nil
}

func (p *TwilioProvider) Provision(ctx context.Context, number string, targets CallbackTargets) ProvisionResult {
	form := url.Values{}
	form.Set("PhoneNumber", number)
	if targets.VoiceURL != "" {
		form.Set("VoiceUrl", targets.VoiceURL)
	}
	if targets.MessageURL != "" {
		form.Set("SmsUrl", targets.MessageURL)
	}

	data, err := p.invoke(ctx, http.MethodPost, "/IncomingPhoneNumbers.json", nil, form)
	if err != nil {
		return ProvisionResult{Error: err.Error()}
	}
	var payload struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ProvisionResult{Error: "twilio provision decode failed"}
	}
	return ProvisionResult{OK: true, ProviderRef: payload.SID}
}

func (p *TwilioProvider) Release(ctx context.Context, number string) bool {
	sid, err := p.numberSID(ctx, number)
	if err != nil {
		p.logger.Warn("twilio release lookup failed", "number", number, "error", err)
		return false
	}
	_, err = p.invoke(ctx, http.MethodDelete, fmt.Sprintf("/IncomingPhoneNumbers/%s.json", sid), nil, nil)
	if err != nil {
		p.logger.Warn("twilio release failed", "number", number, "error", err)
		return false
	}
	return true
}

func (p *TwilioProvider) ConfigureForwarding(ctx context.Context, from, to, extension string) bool {
	sid, err := p.numberSID(ctx, from)
	if err != nil {
		p.logger.Warn("twilio forwarding lookup failed", "number", from, "error", err)
		return false
	}
	forwardURL := fmt.Sprintf("https://twimlets.com/forward?PhoneNumber=%s", url.QueryEscape(to))
	if extension != "" {
		forwardURL += "&Extension=" + url.QueryEscape(extension)
	}
	form := url.Values{}
	form.Set("VoiceUrl", forwardURL)
	if _, err := p.invoke(ctx, http.MethodPost, fmt.Sprintf("/IncomingPhoneNumbers/%s.json", sid), nil, form); err != nil {
		p.logger.Warn("twilio forwarding update failed", "number", from, "error", err)
		return false
	}
	return true
}

func (p *TwilioProvider) SendText(ctx context.Context, to, from, body string) bool {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)
	if _, err := p.invoke(ctx, http.MethodPost, "/Messages.json", nil, form); err != nil {
		p.logger.Warn("twilio send text failed", "to", to, "error", err)
		return false
	}
	return true
}

func (p *TwilioProvider) PlaceCall(ctx context.Context, to, from, instructionsURL string) CallResult {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Url", instructionsURL)

	data, err := p.invoke(ctx, http.MethodPost, "/Calls.json", nil, form)
	if err != nil {
		return CallResult{Error: err.Error()}
	}
	var payload struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return CallResult{Error: "twilio call decode failed"}
	}
	return CallResult{OK: true, CallRef: payload.SID}
}

// numberSID looks up the provider reference for an owned number.
func (p *TwilioProvider) numberSID(ctx context.Context, number string) (string, error) {
	q := url.Values{}
	q.Set("PhoneNumber", number)
	data, err := p.invoke(ctx, http.MethodGet, "/IncomingPhoneNumbers.json", q, nil)
	if err != nil {
		return "", err
	}
	var payload struct {
		IncomingPhoneNumbers []struct {
			SID string `json:"sid"`
		} `json:"incoming_phone_numbers"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("carrier: twilio lookup decode: %w", err)
	}
	if len(payload.IncomingPhoneNumbers) == 0 {
		return "", fmt.Errorf("carrier: twilio has no record for %s", number)
	}
	return payload.IncomingPhoneNumbers[0].SID, nil
}

func (p *TwilioProvider) invoke(ctx context.Context, method, path string, query url.Values, form url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s%s", p.baseURL, p.accountSID, path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("carrier: twilio build request: %w", err)
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier: twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("carrier: twilio read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("carrier: twilio status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
