// File: internal/infra/adapters/payment/momo_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/config"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
)

var _ adapter.PaymentGateway = (*MoMoGateway)(nil)

// MoMoGateway implements adapter.PaymentGateway against the MTN MoMo
// collection API. The access token is fetched with client credentials
// (API user / API key) and reused until it expires.
type MoMoGateway struct {
	baseURL     string
	environment string
	callbackURL string
	client      *http.Client
	log         *zerolog.Logger
	dev         bool
}

func NewMoMoGateway(cfg config.MoMoConfig, timeout time.Duration, dev bool, logger *zerolog.Logger) (*MoMoGateway, error) {
	if cfg.BaseURL == "" || cfg.SubscriptionKey == "" || cfg.APIUser == "" || cfg.APIKey == "" {
		return nil, errors.New("momo: base url, subscription key, api user and api key are required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	// Token and API calls share the transport that stamps the subscription
	// key, so both pass the APIM gateway in front of MoMo.
	plain := &http.Client{
		Timeout: timeout,
		Transport: &apimTransport{
			next:        http.DefaultTransport,
			key:         cfg.SubscriptionKey,
			environment: cfg.TargetEnvironment,
		},
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.APIUser,
		ClientSecret: cfg.APIKey,
		TokenURL:     base + "/collection/token/",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, plain)
	src := oauth2.ReuseTokenSource(nil, bearerSource{cc.TokenSource(ctx)})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = timeout

	l := logger.With().Str("component", "MoMoGateway").Logger()
	return &MoMoGateway{
		baseURL:     base,
		environment: cfg.TargetEnvironment,
		callbackURL: cfg.CallbackURL,
		client:      client,
		log:         &l,
		dev:         dev,
	}, nil
}

func (g *MoMoGateway) Name() string { return "momo" }

type momoParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPayBody struct {
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	ExternalID   string    `json:"externalId"`
	Payer        momoParty `json:"payer"`
	PayerMessage string    `json:"payerMessage"`
	PayeeNote    string    `json:"payeeNote"`
}

// RequestToPay calls POST /collection/v1_0/requesttopay. MoMo answers 202
// with an empty body; the outcome is read later through ChargeStatus.
func (g *MoMoGateway) RequestToPay(ctx context.Context, req adapter.ChargeRequest) error {
	defer logging.TraceDuration(g.log, "MoMoGateway.RequestToPay")()

	payload := requestToPayBody{
		Amount:       model.FormatMinor(req.AmountMinor),
		Currency:     req.Currency,
		ExternalID:   req.Reference,
		Payer:        momoParty{PartyIDType: "MSISDN", PartyID: strings.TrimPrefix(req.PhoneNumber, "+")},
		PayerMessage: req.Description,
		PayeeNote:    req.Description,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/collection/v1_0/requesttopay", bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Reference-Id", req.Reference)
	if g.callbackURL != "" {
		httpReq.Header.Set("X-Callback-Url", g.callbackURL)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return transportErr(err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusAccepted, resp.StatusCode == http.StatusOK:
		g.log.Debug().
			Str("reference", req.Reference).
			Str("payer", logging.Redact(req.PhoneNumber, g.dev)).
			Msg("request to pay accepted")
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Same X-Reference-Id submitted twice; the first request stands.
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: requesttopay http %d", adapter.ErrGatewayUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("momo rejected request to pay: http %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}
}

type requestToPayStatus struct {
	Amount                 string          `json:"amount"`
	Currency               string          `json:"currency"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	ExternalID             string          `json:"externalId"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason"`
}

// ChargeStatus calls GET /collection/v1_0/requesttopay/{reference}.
func (g *MoMoGateway) ChargeStatus(ctx context.Context, reference string) (adapter.ChargeResult, error) {
	defer logging.TraceDuration(g.log, "MoMoGateway.ChargeStatus")()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/collection/v1_0/requesttopay/"+reference, nil)
	if err != nil {
		return adapter.ChargeResult{}, err
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return adapter.ChargeResult{}, transportErr(err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return adapter.ChargeResult{}, adapter.ErrChargeNotFound
	case resp.StatusCode >= 500:
		return adapter.ChargeResult{}, fmt.Errorf("%w: requesttopay status http %d", adapter.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return adapter.ChargeResult{}, fmt.Errorf("momo status query failed: http %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}

	var out requestToPayStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.ChargeResult{}, fmt.Errorf("decode requesttopay status: %w", err)
	}
	res := adapter.ChargeResult{ProviderID: out.FinancialTransactionID}
	switch strings.ToUpper(out.Status) {
	case "SUCCESSFUL", "SUCCESS":
		res.Status = adapter.ChargeSuccessful
	case "FAILED", "REJECTED", "TIMEOUT":
		res.Status = adapter.ChargeFailed
		res.Reason = reasonText(out.Reason)
	default:
		res.Status = adapter.ChargePending
	}
	return res, nil
}

// reasonText accepts both reason shapes MoMo emits: a bare code string or
// an object with code and message.
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Message != "" {
			return obj.Code + ": " + obj.Message
		}
		return obj.Code
	}
	return string(raw)
}

func errorMessage(body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, 2048))
	var out struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &out) == nil && out.Message != "" {
		return out.Message
	}
	return strings.TrimSpace(string(b))
}

// transportErr classifies a client.Do failure. Token endpoint rejections
// are configuration problems; everything else leaves the outcome unknown.
func transportErr(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
		return fmt.Errorf("momo token rejected: %w", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", adapter.ErrGatewayUnavailable, err)
}

func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 4096))
	_ = rc.Close()
}

// apimTransport adds the headers the Azure APIM front door requires.
type apimTransport struct {
	next        http.RoundTripper
	key         string
	environment string
}

func (t *apimTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Ocp-Apim-Subscription-Key", t.key)
	if t.environment != "" {
		r.Header.Set("X-Target-Environment", t.environment)
	}
	return t.next.RoundTrip(r)
}

// bearerSource normalises the token type. MoMo returns
// token_type "access_token", which oauth2 would echo into the
// Authorization header verbatim.
type bearerSource struct {
	src oauth2.TokenSource
}

func (b bearerSource) Token() (*oauth2.Token, error) {
	tok, err := b.src.Token()
	if err != nil {
		return nil, err
	}
	out := *tok
	out.TokenType = "Bearer"
	return &out, nil
}
