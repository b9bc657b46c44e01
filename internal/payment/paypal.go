package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderlink/internal/config"
	"orderlink/internal/errs"
	"orderlink/internal/httpx"
	"orderlink/internal/metrics"
	"orderlink/internal/model"
)

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"

	// Provider issue codes with special handling.
	issueAlreadyCaptured    = "ORDER_ALREADY_CAPTURED"
	issueInstrumentDeclined = "INSTRUMENT_DECLINED"
)

// PayPal talks to the PayPal Orders v2 API. The access token is cached per
// process until the provider-reported expiry lapses and refreshed once on 401.
type PayPal struct {
	cfg config.PayPalConfig
	hc  *httpx.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewPayPal(cfg config.PayPalConfig, hc *httpx.Client) *PayPal {
	if hc == nil {
		hc = httpx.New(httpx.DefaultTimeout, 0)
	}
	return &PayPal{cfg: cfg, hc: hc}
}

func (p *PayPal) Name() string { return "paypal" }

func (p *PayPal) base() string {
	if p.cfg.BaseURL != "" {
		return p.cfg.BaseURL
	}
	if p.cfg.Environment == config.EnvProduction {
		return paypalLiveBase
	}
	return paypalSandboxBase
}

// accessToken returns a cached bearer token, fetching a fresh one via the
// client-credentials grant when the cache is cold or expired.
func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && time.Now().Before(p.tokenExp) {
		tok := p.token
		p.mu.Unlock()
		return tok, nil
	}
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base()+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	basic := base64.StdEncoding.EncodeToString([]byte(p.cfg.ClientID + ":" + p.cfg.Secret))
	req.Header.Set("Authorization", "Basic "+basic)

	status, body, err := p.hc.Do(req)
	if err != nil {
		return "", &errs.ProviderUnavailableError{Provider: p.Name(), Err: err}
	}
	if status != http.StatusOK {
		return "", &errs.ProviderRejectedError{Provider: p.Name(), Status: status,
			Issues: []errs.Issue{{Code: "AUTH", Message: "token request failed"}}}
	}
	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("bad token response")}
	}
	p.mu.Lock()
	p.token = tr.AccessToken
	// refresh a minute early
	p.tokenExp = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	p.mu.Unlock()
	return tr.AccessToken, nil
}

func (p *PayPal) invalidateToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// call performs an authenticated JSON request, refreshing the token once if
// the provider answers 401.
func (p *PayPal) call(ctx context.Context, op, method, url string, in any) (int, []byte, error) {
	start := time.Now()
	status, body, err := p.doAuthed(ctx, method, url, in)
	if err == nil && status == http.StatusUnauthorized {
		p.invalidateToken()
		status, body, err = p.doAuthed(ctx, method, url, in)
	}
	outcome := "ok"
	if err != nil || status >= 400 {
		outcome = "error"
	}
	metrics.ProviderCalls.WithLabelValues(p.Name(), op, outcome).Inc()
	metrics.ProviderLatency.WithLabelValues(p.Name(), op).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return 0, nil, &errs.ProviderUnavailableError{Provider: p.Name(), Err: err}
	}
	return status, body, nil
}

func (p *PayPal) doAuthed(ctx context.Context, method, url string, in any) (int, []byte, error) {
	tok, err := p.accessToken(ctx)
	if err != nil {
		return 0, nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + tok}
	if method == http.MethodPost {
		return p.hc.PostJSON(ctx, url, headers, in)
	}
	return p.hc.Get(ctx, url, headers)
}

// Wire shapes for the Orders v2 API.

type ppAmount struct {
	CurrencyCode string       `json:"currency_code"`
	Value        string       `json:"value"`
	Breakdown    *ppBreakdown `json:"breakdown,omitempty"`
}

type ppMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type ppBreakdown struct {
	ItemTotal *ppMoney `json:"item_total,omitempty"`
	TaxTotal  *ppMoney `json:"tax_total,omitempty"`
	Shipping  *ppMoney `json:"shipping,omitempty"`
	Discount  *ppMoney `json:"discount,omitempty"`
}

type ppItem struct {
	Name       string  `json:"name"`
	Quantity   string  `json:"quantity"`
	UnitAmount ppMoney `json:"unit_amount"`
}

type ppPurchaseUnit struct {
	CustomID string   `json:"custom_id,omitempty"`
	Amount   ppAmount `json:"amount"`
	Items    []ppItem `json:"items,omitempty"`
	Payee    *ppPayee `json:"payee,omitempty"`
	Payments *struct {
		Captures []struct {
			ID     string  `json:"id"`
			Status string  `json:"status"`
			Amount ppMoney `json:"amount"`
		} `json:"captures"`
	} `json:"payments,omitempty"`
}

type ppPayee struct {
	MerchantID string `json:"merchant_id,omitempty"`
}

type ppLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type ppOrder struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	PurchaseUnits []ppPurchaseUnit `json:"purchase_units"`
	Links         []ppLink         `json:"links"`
}

func money(currency string, v float64) *ppMoney {
	return &ppMoney{CurrencyCode: currency, Value: strconv.FormatFloat(v, 'f', 2, 64)}
}

// CreateIntent builds the order payload (amount breakdown entries only when
// non-zero) and registers it with the gateway.
func (p *PayPal) CreateIntent(ctx context.Context, o model.Order) (CheckoutIntent, error) {
	if len(o.Items) == 0 {
		return CheckoutIntent{}, errs.Validationf("order %s has no items", o.ID)
	}
	if o.TotalAmount <= 0 {
		return CheckoutIntent{}, errs.Validationf("order %s has non-positive amount", o.ID)
	}

	amount := ppAmount{CurrencyCode: o.Currency, Value: strconv.FormatFloat(o.TotalAmount, 'f', 2, 64), Breakdown: &ppBreakdown{}}
	if o.Subtotal > 0 {
		amount.Breakdown.ItemTotal = money(o.Currency, o.Subtotal)
	}
	if o.TaxTotal > 0 {
		amount.Breakdown.TaxTotal = money(o.Currency, o.TaxTotal)
	}
	if o.ShippingCharge > 0 {
		amount.Breakdown.Shipping = money(o.Currency, o.ShippingCharge)
	}
	if o.CouponDiscount > 0 {
		amount.Breakdown.Discount = money(o.Currency, o.CouponDiscount)
	}

	items := make([]ppItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ppItem{
			Name:       it.Title,
			Quantity:   strconv.Itoa(it.Quantity),
			UnitAmount: *money(o.Currency, it.UnitPrice),
		})
	}

	pu := ppPurchaseUnit{CustomID: o.ID, Amount: amount, Items: items}
	if p.cfg.MerchantID != "" {
		pu.Payee = &ppPayee{MerchantID: p.cfg.MerchantID}
	}
	payload := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []ppPurchaseUnit{pu},
		"application_context": map[string]string{
			"return_url": p.cfg.ReturnURL,
			"cancel_url": p.cfg.CancelURL,
		},
	}

	status, body, err := p.call(ctx, "create_order", http.MethodPost, p.base()+"/v2/checkout/orders", payload)
	if err != nil {
		return CheckoutIntent{}, err
	}
	if status >= 400 {
		return CheckoutIntent{}, p.rejected(status, body)
	}
	var ord ppOrder
	if err := json.Unmarshal(body, &ord); err != nil || ord.ID == "" {
		return CheckoutIntent{}, &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("unparseable create response")}
	}
	return CheckoutIntent{ProviderOrderID: ord.ID, ApprovalURL: linkByRel(ord.Links, "approve", "payer-action")}, nil
}

// CaptureIntent fetches the approved order resource, follows its capture
// link, and normalizes the result. "Already captured" short-circuits to
// success so duplicate webhook deliveries never double-charge.
func (p *PayPal) CaptureIntent(ctx context.Context, providerOrderID string) (model.PaymentIntent, error) {
	status, body, err := p.call(ctx, "get_order", http.MethodGet, p.base()+"/v2/checkout/orders/"+providerOrderID, nil)
	if err != nil {
		return model.PaymentIntent{}, err
	}
	if status >= 400 {
		return model.PaymentIntent{}, p.rejected(status, body)
	}
	var ord ppOrder
	if err := json.Unmarshal(body, &ord); err != nil {
		return model.PaymentIntent{}, &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("unparseable order resource")}
	}
	base := p.intentFrom(ord, providerOrderID)
	if ord.Status == "COMPLETED" {
		base.Status = model.IntentCaptured
		return base, nil
	}

	captureURL := linkByRel(ord.Links, "capture")
	if captureURL == "" {
		return model.PaymentIntent{}, &errs.ProviderRejectedError{Provider: p.Name(), Status: status,
			Issues: []errs.Issue{{Code: "NO_CAPTURE_LINK", Message: "order resource carries no capture link"}}}
	}

	status, body, err = p.call(ctx, "capture_order", http.MethodPost, captureURL, struct{}{})
	if err != nil {
		return model.PaymentIntent{}, err
	}
	if status >= 400 {
		rej := p.rejected(status, body)
		var pr *errs.ProviderRejectedError
		if errors.As(rej, &pr) {
			if hasIssue(pr, issueAlreadyCaptured) {
				base.Status = model.IntentCaptured
				return base, nil
			}
			if hasIssue(pr, issueInstrumentDeclined) {
				base.Status = model.IntentDeclined
				return base, nil
			}
		}
		return model.PaymentIntent{}, rej
	}
	var captured ppOrder
	if err := json.Unmarshal(body, &captured); err != nil {
		return model.PaymentIntent{}, &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("unparseable capture response")}
	}
	switch captured.Status {
	case "COMPLETED":
		base.Status = model.IntentCaptured
	case "DECLINED":
		base.Status = model.IntentDeclined
	default:
		base.Status = model.IntentFailed
	}
	return base, nil
}

// RegisterWebhook subscribes our notify URL to approval events and returns
// the provider-assigned webhook id.
func (p *PayPal) RegisterWebhook(ctx context.Context, notifyURL string) (string, error) {
	payload := map[string]any{
		"url": notifyURL,
		"event_types": []map[string]string{
			{"name": "CHECKOUT.ORDER.APPROVED"},
		},
	}
	status, body, err := p.call(ctx, "register_webhook", http.MethodPost, p.base()+"/v1/notifications/webhooks", payload)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", p.rejected(status, body)
	}
	var res struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.ID == "" {
		return "", &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("unparseable webhook response")}
	}
	return res.ID, nil
}

func (p *PayPal) intentFrom(ord ppOrder, providerOrderID string) model.PaymentIntent {
	pi := model.PaymentIntent{Provider: p.Name(), ProviderOrderID: providerOrderID, UpdatedAt: time.Now().UTC()}
	if len(ord.PurchaseUnits) > 0 {
		pu := ord.PurchaseUnits[0]
		pi.OrderID = pu.CustomID
		pi.Currency = pu.Amount.CurrencyCode
		if v, err := strconv.ParseFloat(pu.Amount.Value, 64); err == nil {
			pi.Amount = v
		}
	}
	return pi
}

// rejected maps a 4xx/5xx body to the taxonomy: parseable structured errors
// become ProviderRejectedError, anything else is treated as unavailable.
func (p *PayPal) rejected(status int, body []byte) error {
	var er struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Details []struct {
			Issue       string `json:"issue"`
			Description string `json:"description"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &er); err == nil && (er.Name != "" || len(er.Details) > 0) {
		issues := make([]errs.Issue, 0, len(er.Details))
		for _, d := range er.Details {
			issues = append(issues, errs.Issue{Code: d.Issue, Message: d.Description})
		}
		if len(issues) == 0 {
			issues = append(issues, errs.Issue{Code: er.Name, Message: er.Message})
		}
		return &errs.ProviderRejectedError{Provider: p.Name(), Status: status, Issues: issues}
	}
	if status >= 500 {
		return &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("HTTP %d", status)}
	}
	return &errs.ProviderRejectedError{Provider: p.Name(), Status: status}
}

func linkByRel(links []ppLink, rels ...string) string {
	for _, rel := range rels {
		for _, l := range links {
			if l.Rel == rel {
				return l.Href
			}
		}
	}
	return ""
}

func hasIssue(pr *errs.ProviderRejectedError, code string) bool {
	for _, is := range pr.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}
