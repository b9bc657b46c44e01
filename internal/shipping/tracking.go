package shipping

import (
	"fmt"
	"net/url"
)

// TrackingURL synthesizes the customer-facing tracking page link. Pure: the
// same (carrier, code, postalCode, countryCode, language) always yields the
// same URL and no network call is involved.
func TrackingURL(carrier, code, postalCode, countryCode, language string) string {
	switch carrier {
	case "dhl":
		q := url.Values{}
		q.Set("tt", code)
		q.Set("pc", postalCode)
		q.Set("lc", countryCode)
		return fmt.Sprintf("https://www.dhlparcel.nl/%s/track-trace?%s", language, q.Encode())
	default:
		return fmt.Sprintf("https://jouw.postnl.nl/track-and-trace/%s-%s-%s?language=%s",
			url.PathEscape(code), url.PathEscape(countryCode), url.PathEscape(postalCode), url.QueryEscape(language))
	}
}
