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

const vonageDefaultBaseURL = "https://rest.nexmo.com"

// VonageConfig controls the Vonage adapter.
type VonageConfig struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// VonageProvider adapts the Vonage number/SMS/voice REST APIs to the
// Provider contract.
type VonageProvider struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewVonageProvider creates a configured adapter with sane defaults.
func NewVonageProvider(cfg VonageConfig) (*VonageProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, errors.New("carrier: vonage credentials are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = vonageDefaultBaseURL
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
	return &VonageProvider{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (p *VonageProvider) Name() string { return "vonage" }

func (p *VonageProvider) SearchNumbers(ctx context.Context, countryCode, region string) ([]NumberOffer, error) {
	country, ok := countryForPrefix[countryCode]
	if !ok {
		country = "LV"
	}
	q := url.Values{}
	q.Set("country", country)
	q.Set("features", "VOICE,SMS")
	if region != "" {
		q.Set("pattern", region)
	}

	data, err := p.invoke(ctx, http.MethodGet, "/number/search", q, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Numbers []struct {
			MSISDN   string   `json:"msisdn"`
			Features []string `json:"features"`
		} `json:"numbers"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("carrier: vonage search decode: %w", err)
	}

	offers := make([]NumberOffer, 0, len(payload.Numbers))
	for _, n := range payload.Numbers {
		caps := []Capability{}
		for _, f := range n.Features {
			switch strings.ToUpper(f) {
			case "VOICE":
				caps = append(caps, CapabilityVoice)
			case "SMS":
				caps = append(caps, CapabilitySMS)
			}
		}
		number := n.MSISDN
		if !strings.HasPrefix(number, "+") {
			number = "+" + number
		}
		offers = append(offers, NumberOffer{
			Number:       number,
			CountryCode:  countryCode,
			Provider:     p.Name(),
			Capabilities: caps,
			MonthlyCost:  12.00,
			SetupCost:    0.50,
		})
	}
	return offers, nil
}

func (p *VonageProvider) Provision(ctx context.Context, number string, targets CallbackTargets) ProvisionResult {
	form := url.Values{}
	form.Set("country", countryForNumber(number))
	form.Set("msisdn", strings.TrimPrefix(number, "+"))

	if _, err := p.invoke(ctx, http.MethodPost, "/number/buy", nil, form); err != nil {
		return ProvisionResult{Error: err.Error()}
	}

	// Point the number's callbacks at the gateway.
	update := url.Values{}
	update.Set("country", countryForNumber(number))
	update.Set("msisdn", strings.TrimPrefix(number, "+"))
	if targets.MessageURL != "" {
		update.Set("moHttpUrl", targets.MessageURL)
	}
	if targets.VoiceURL != "" {
		update.Set("voiceCallbackType", "app")
		update.Set("voiceCallbackValue", targets.VoiceURL)
	}
	if _, err := p.invoke(ctx, http.MethodPost, "/number/update", nil, update); err != nil {
		p.logger.Warn("vonage callback update failed after buy", "number", number, "error", err)
	}
	return ProvisionResult{OK: true, ProviderRef: strings.TrimPrefix(number, "+")}
}

func (p *VonageProvider) Release(ctx context.Context, number string) bool {
	form := url.Values{}
	form.Set("country", countryForNumber(number))
	form.Set("msisdn", strings.TrimPrefix(number, "+"))
	if _, err := p.invoke(ctx, http.MethodPost, "/number/cancel", nil, form); err != nil {
		p.logger.Warn("vonage release failed", "number", number, "error", err)
		return false
	}
	return true
}

func (p *VonageProvider) ConfigureForwarding(ctx context.Context, from, to, extension string) bool {
	form := url.Values{}
	form.Set("country", countryForNumber(from))
	form.Set("msisdn", strings.TrimPrefix(from, "+"))
	form.Set("voiceCallbackType", "tel")
	form.Set("voiceCallbackValue", strings.TrimPrefix(to, "+"))
	if _, err := p.invoke(ctx, http.MethodPost, "/number/update", nil, form); err != nil {
		p.logger.Warn("vonage forwarding update failed", "number", from, "error", err)
		return false
	}
	return true
}

func (p *VonageProvider) SendText(ctx context.Context, to, from, body string) bool {
	form := url.Values{}
	form.Set("to", strings.TrimPrefix(to, "+"))
	form.Set("from", strings.TrimPrefix(from, "+"))
	form.Set("text", body)

	data, err := p.invoke(ctx, http.MethodPost, "/sms/json", nil, form)
	if err != nil {
		p.logger.Warn("vonage send text failed", "to", to, "error", err)
		return false
	}
	var payload struct {
		Messages []struct {
			Status string `json:"status"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Messages) == 0 {
		return false
	}
	return payload.Messages[0].Status == "0"
}

func (p *VonageProvider) PlaceCall(ctx context.Context, to, from, instructionsURL string) CallResult {
	body, err := json.Marshal(map[string]any{
		"to":         []map[string]string{{"type": "phone", "number": strings.TrimPrefix(to, "+")}},
		"from":       map[string]string{"type": "phone", "number": strings.TrimPrefix(from, "+")},
		"answer_url": []string{instructionsURL},
	})
	if err != nil {
		return CallResult{Error: "vonage call encode failed"}
	}
	data, err := p.invokeJSON(ctx, http.MethodPost, "/v1/calls", body)
	if err != nil {
		return CallResult{Error: err.Error()}
	}
	var payload struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return CallResult{Error: "vonage call decode failed"}
	}
	return CallResult{OK: true, CallRef: payload.UUID}
}

func (p *VonageProvider) invoke(ctx context.Context, method, path string, query url.Values, form url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	if form != nil {
		form.Set("api_key", p.apiKey)
		form.Set("api_secret", p.apiSecret)
	} else {
		query.Set("api_key", p.apiKey)
		query.Set("api_secret", p.apiSecret)
	}

	endpoint := p.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("carrier: vonage build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return p.do(req)
}

func (p *VonageProvider) invokeJSON(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("carrier: vonage build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.apiKey, p.apiSecret)
	return p.do(req)
}

func (p *VonageProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier: vonage request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("carrier: vonage read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("carrier: vonage status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func countryForNumber(number string) string {
	for prefix, iso := range countryForPrefix {
		if prefix != "+1" && strings.HasPrefix(number, prefix) {
			return iso
		}
	}
	if strings.HasPrefix(number, "+1") {
		return "US"
	}
	return "LV"
}
