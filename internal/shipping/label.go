package shipping

import (
	"encoding/base64"
	"strings"

	"orderlink/internal/errs"
	"orderlink/internal/model"
)

// Carrier response envelope: {ResponseShipments: [{Barcode, Labels: [...]}]}.

type LabelEntry struct {
	Content   string `json:"Content"` // base64
	Labeltype string `json:"Labeltype"`
}

type ResponseShipment struct {
	Barcode string       `json:"Barcode"`
	Labels  []LabelEntry `json:"Labels"`
}

type Envelope struct {
	ResponseShipments []ResponseShipment `json:"ResponseShipments"`
}

// ExtractLabel locates the first label in a parsed carrier response and
// decodes it. A response without a usable label is a LabelMissingError; no
// placeholder is ever substituted.
func ExtractLabel(provider string, env Envelope) (model.Label, error) {
	if len(env.ResponseShipments) == 0 {
		return model.Label{}, &errs.LabelMissingError{Provider: provider}
	}
	rs := env.ResponseShipments[0]
	if len(rs.Labels) == 0 || rs.Labels[0].Content == "" {
		return model.Label{}, &errs.LabelMissingError{Provider: provider}
	}
	entry := rs.Labels[0]
	content, err := base64.StdEncoding.DecodeString(entry.Content)
	if err != nil || len(content) == 0 {
		return model.Label{}, &errs.LabelMissingError{Provider: provider}
	}
	format := entry.Labeltype
	if format == "" {
		format = model.LabelFormatPDF
	}
	return model.Label{
		Content:      content,
		MimeType:     MimeType(format),
		Filename:     rs.Barcode + "." + strings.ToLower(format),
		TrackingCode: rs.Barcode,
	}, nil
}

// MimeType maps a label format to its download content type.
func MimeType(format string) string {
	if strings.EqualFold(format, model.LabelFormatZPL) {
		return "application/zpl"
	}
	return "application/pdf"
}
