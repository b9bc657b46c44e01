package model

import "time"

// Core domain types read and written by the integration layer. The order
// domain owns Order; this layer only writes back payment status and tracking.

type Address struct {
    Name        string `json:"name" yaml:"name"`
    Street      string `json:"street" yaml:"street"`
    HouseNumber string `json:"houseNumber,omitempty" yaml:"houseNumber"`
    PostalCode  string `json:"postalCode" yaml:"postalCode"`
    City        string `json:"city" yaml:"city"`
    CountryCode string `json:"countryCode" yaml:"countryCode"`
}

type OrderItem struct {
    Title     string  `json:"title"`
    Quantity  int     `json:"quantity"`
    UnitPrice float64 `json:"unitPrice"`
    WeightG   int     `json:"weightGrams,omitempty"`
}

type Order struct {
    ID              string      `json:"id"`
    Currency        string      `json:"currency"`
    TotalAmount     float64     `json:"totalAmount"`
    Subtotal        float64     `json:"subtotal"`
    TaxTotal        float64     `json:"taxTotal,omitempty"`
    ShippingCharge  float64     `json:"shippingCharge,omitempty"`
    CouponDiscount  float64     `json:"couponDiscount,omitempty"`
    ShippingAddress Address     `json:"shippingAddress"`
    Items           []OrderItem `json:"items"`
    PaymentMethod   string      `json:"paymentMethod,omitempty"`
    PaymentStatus   string      `json:"paymentStatus,omitempty"`
    TrackingNumber  string      `json:"trackingNumber,omitempty"`
    TrackingURL     string      `json:"trackingUrl,omitempty"`
}

// Order payment statuses written back by the orchestrator.
const (
    PaymentPending  = "pending"
    PaymentPaid     = "paid"
    PaymentDeclined = "declined"
    PaymentFailed   = "failed"
)

type IntentStatus string

const (
    IntentCreated  IntentStatus = "created"
    IntentApproved IntentStatus = "approved"
    IntentCaptured IntentStatus = "captured"
    IntentDeclined IntentStatus = "declined"
    IntentFailed   IntentStatus = "failed"
)

// intentRank orders the forward-only lifecycle. Terminal states share the
// highest rank so no transition out of them is possible.
var intentRank = map[IntentStatus]int{
    IntentCreated:  0,
    IntentApproved: 1,
    IntentCaptured: 2,
    IntentDeclined: 2,
    IntentFailed:   2,
}

// CanAdvanceTo reports whether moving from s to next is a valid forward
// transition. Re-asserting the current state is allowed (duplicate webhook
// deliveries), moving backward or out of a terminal state is not.
func (s IntentStatus) CanAdvanceTo(next IntentStatus) bool {
    cur, ok := intentRank[s]
    if !ok { return false }
    nxt, ok := intentRank[next]
    if !ok { return false }
    if s == next { return true }
    if cur >= 2 { return false }
    return nxt > cur
}

type PaymentIntent struct {
    OrderID         string       `json:"orderId"`
    Provider        string       `json:"provider"`
    ProviderOrderID string       `json:"providerOrderId"`
    Amount          float64      `json:"amount"`
    Currency        string       `json:"currency"`
    Status          IntentStatus `json:"status"`
    CreatedAt       time.Time    `json:"createdAt"`
    UpdatedAt       time.Time    `json:"updatedAt"`
}

// Label formats accepted in carrier configuration.
const (
    LabelFormatPDF = "PDF"
    LabelFormatZPL = "ZPL"
)

type Shipment struct {
    ID           string    `json:"id"`
    OrderID      string    `json:"orderId"`
    Carrier      string    `json:"carrier"`
    Barcode      string    `json:"barcode"`
    TrackingURL  string    `json:"trackingUrl"`
    LabelContent []byte    `json:"-"`
    LabelFormat  string    `json:"labelFormat"`
    Status       string    `json:"status"` // created, confirmed
    CreatedAt    time.Time `json:"createdAt"`
}

// Label is the normalized, downloadable form of a carrier label. Never
// persisted standalone; derived from a Shipment on demand.
type Label struct {
    Content      []byte
    MimeType     string
    Filename     string
    TrackingCode string
}

type Rate struct {
    Carrier       string  `json:"carrier"`
    Name          string  `json:"name"`
    Amount        float64 `json:"amount"`
    Currency      string  `json:"currency"`
    EstimatedDate string  `json:"estimatedDate,omitempty"`
}

// PackageWeightG computes the shipment weight in grams: the sum of item
// weights, substituting fallbackG for items without one. An order with no
// usable weights gets fallbackG for the whole package.
func (o Order) PackageWeightG(fallbackG int) int {
    total := 0
    for _, it := range o.Items {
        w := it.WeightG
        if w <= 0 { w = fallbackG }
        q := it.Quantity
        if q <= 0 { q = 1 }
        total += w * q
    }
    if total <= 0 { total = fallbackG }
    return total
}
