package shipping

import (
	"fmt"
	"math/rand"
	"time"

	"orderlink/internal/config"
	"orderlink/internal/model"
)

// mockSuffixDigits fixes the tracking-code shape: prefix + 9 random digits.
const mockSuffixDigits = 9

// mockShipment synthesizes a shipment without touching any carrier API: a
// randomized tracking code of deterministic shape and a minimal but valid
// label document carrying the code and the destination name. Used for
// non-destructive UI testing.
func mockShipment(carrier, prefix string, o model.Order, cfg config.CarrierConfig) model.Shipment {
	code := prefix + randDigits(mockSuffixDigits)
	var content []byte
	if cfg.LabelFormat == model.LabelFormatZPL {
		content = mockZPL(code, o.ShippingAddress.Name)
	} else {
		content = mockPDF(code, o.ShippingAddress.Name)
	}
	return model.Shipment{
		OrderID:      o.ID,
		Carrier:      carrier,
		Barcode:      code,
		TrackingURL:  TrackingURL(carrier, code, o.ShippingAddress.PostalCode, o.ShippingAddress.CountryCode, cfg.TrackingLanguage),
		LabelContent: content,
		LabelFormat:  cfg.LabelFormat,
		Status:       "created",
		CreatedAt:    time.Now().UTC(),
	}
}

func randDigits(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('0' + rand.Intn(10))
	}
	return string(out)
}

// mockPDF builds a one-page PDF whose text stream holds the tracking code
// and recipient name. Starts with the %PDF header so format sniffing works.
func mockPDF(code, name string) []byte {
	stream := fmt.Sprintf("BT /F1 14 Tf 20 380 Td (%s) Tj ET\nBT /F1 10 Tf 20 360 Td (%s) Tj ET", code, name)
	body := fmt.Sprintf(`%%PDF-1.4
1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj
2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj
3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 283 425]/Resources<</Font<</F1 5 0 R>>>>/Contents 4 0 R>>endobj
4 0 obj<</Length %d>>stream
%s
endstream
endobj
5 0 obj<</Type/Font/Subtype/Type1/BaseFont/Helvetica>>endobj
trailer<</Root 1 0 R>>
%%%%EOF
`, len(stream), stream)
	return []byte(body)
}

func mockZPL(code, name string) []byte {
	return []byte(fmt.Sprintf("^XA\n^FO50,50^ADN,36,20^FD%s^FS\n^FO50,120^ADN,18,10^FD%s^FS\n^XZ\n", code, name))
}
