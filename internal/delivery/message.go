package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
)

const footerText = "OnlyDrives Monitor"

// Field is one labelled value of a rendered alert.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a transport-neutral rendering of an alert.
type Message struct {
	Title       string
	Color       int
	Description string
	URL         string
	ImageURL    string
	Fields      []Field
	Footer      string
	Timestamp   time.Time
}

var hundred = decimal.NewFromInt(100)

// Render builds the message for an event.
func Render(ev alerting.Event, at time.Time) Message {
	info := ev.Kind.Info()
	p := ev.Product

	msg := Message{
		Title:       info.Title,
		Color:       info.Color,
		Description: fmt.Sprintf("**%s** (%s)\nCondition: %s", p.Name, p.Type, p.Condition),
		URL:         p.URL,
		ImageURL:    p.ImageURL,
		Footer:      footerText,
		Timestamp:   at.UTC(),
	}

	price := "$" + ev.CurrentPrice.StringFixed(2)
	if ev.Kind.IsPrice() && ev.PreviousPrice.Valid {
		price = fmt.Sprintf("~~$%s~~ → **$%s**", ev.PreviousPrice.Decimal.StringFixed(2), ev.CurrentPrice.StringFixed(2))
		if ev.PercentChange.Valid {
			price += " (" + FormatPercent(ev.PercentChange.Decimal) + ")"
		}
	}

	msg.Fields = []Field{
		{Name: "Price", Value: price, Inline: true},
		{Name: "$/TB", Value: "$" + p.PricePerTB.StringFixed(2), Inline: true},
		{Name: "Capacity", Value: p.CapacityTB + " TB", Inline: true},
		{Name: "Source", Value: p.Source, Inline: true},
	}
	return msg
}

// FormatPercent renders a signed fractional change, e.g. -0.1 as "-10.0%".
func FormatPercent(change decimal.Decimal) string {
	pct := change.Mul(hundred).StringFixed(1)
	if change.IsPositive() {
		pct = "+" + pct
	}
	return pct + "%"
}

// PlainText flattens the message for transports without rich formatting.
func (m Message) PlainText() string {
	var b strings.Builder
	b.WriteString("[" + m.Title + "]\n")
	b.WriteString(stripMarkdown(m.Description))
	b.WriteString("\n")
	for _, f := range m.Fields {
		b.WriteString(fmt.Sprintf("%s: %s\n", f.Name, stripMarkdown(f.Value)))
	}
	if m.URL != "" {
		b.WriteString(m.URL)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var markdownStripper = strings.NewReplacer("**", "", "~~", "")

func stripMarkdown(s string) string {
	return markdownStripper.Replace(s)
}
