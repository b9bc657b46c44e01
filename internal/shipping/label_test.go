package shipping

import (
	"encoding/base64"
	"errors"
	"testing"

	"orderlink/internal/errs"
	"orderlink/internal/model"
)

func TestExtractLabel(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
	env := Envelope{ResponseShipments: []ResponseShipment{{
		Barcode: "3S123456789",
		Labels:  []LabelEntry{{Content: content, Labeltype: "PDF"}},
	}}}
	lbl, err := ExtractLabel("postnl", env)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(lbl.Content[:4]) != "%PDF" {
		t.Fatalf("content not decoded: %q", lbl.Content)
	}
	if lbl.Filename != "3S123456789.pdf" {
		t.Fatalf("filename: %s", lbl.Filename)
	}
	if lbl.MimeType != "application/pdf" {
		t.Fatalf("mime: %s", lbl.MimeType)
	}
}

func TestExtractLabelMissing(t *testing.T) {
	var lm *errs.LabelMissingError
	cases := []Envelope{
		{},
		{ResponseShipments: []ResponseShipment{{Barcode: "3S1"}}},
		{ResponseShipments: []ResponseShipment{{Barcode: "3S1", Labels: []LabelEntry{{Content: ""}}}}},
		{ResponseShipments: []ResponseShipment{{Barcode: "3S1", Labels: []LabelEntry{{Content: "!!not-base64!!"}}}}},
	}
	for i, env := range cases {
		if _, err := ExtractLabel("postnl", env); !errors.As(err, &lm) {
			t.Fatalf("case %d: got %v, want LabelMissingError", i, err)
		}
	}
}

func TestMimeType(t *testing.T) {
	if MimeType(model.LabelFormatZPL) != "application/zpl" {
		t.Fatal("zpl mime")
	}
	if MimeType("zpl") != "application/zpl" {
		t.Fatal("zpl mime should be case-insensitive")
	}
	if MimeType(model.LabelFormatPDF) != "application/pdf" {
		t.Fatal("pdf mime")
	}
}

func TestRejectedFromBody(t *testing.T) {
	body := []byte(`{"Errors":[{"ErrorCode":"100","ErrorMsg":"Invalid postal code"},{"ErrorCode":"200","ErrorMsg":"Missing house number"}]}`)
	err := rejectedFromBody("postnl", 422, body)
	var pr *errs.ProviderRejectedError
	if !errors.As(err, &pr) {
		t.Fatalf("got %v", err)
	}
	if pr.Error() != "100: Invalid postal code; 200: Missing house number" {
		t.Fatalf("joined message: %s", pr.Error())
	}

	// unparseable 5xx is unavailable
	err = rejectedFromBody("postnl", 503, []byte("<html>"))
	var pu *errs.ProviderUnavailableError
	if !errors.As(err, &pu) {
		t.Fatalf("unparseable 5xx: got %v", err)
	}
}
