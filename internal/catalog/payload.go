package catalog

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// flexString accepts a JSON string, number or null. The feed is not
// consistent about quoting prices, capacities and ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		*f = flexString(b)
	default:
		// objects, arrays and booleans carry no usable value
		*f = ""
	}
	return nil
}

// flexBool accepts a JSON bool, "true"/"false" style strings or 0/1.
// Anything else reads as false.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	v := strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`))
	switch v {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

type productPayload struct {
	ID                flexString `json:"id"`
	SKU               flexString `json:"sku"`
	Name              flexString `json:"name"`
	Type              flexString `json:"type"`
	Condition         flexString `json:"condition"`
	CapacityTB        flexString `json:"capacity_tb"`
	URL               flexString `json:"url"`
	ImageURL          flexString `json:"image_url"`
	Available         flexBool   `json:"available"`
	CurrentPriceTotal flexString `json:"current_price_total"`
	CurrentPricePerTB flexString `json:"current_price_per_tb"`
	Source            flexString `json:"source"`
}

type historyPayload struct {
	RecordedAt flexString `json:"recorded_at"`
	PriceTotal flexString `json:"price_total"`
	PricePerTB flexString `json:"price_per_tb"`
}
