package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/utils"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Your order for {{.EventName}} is confirmed</h2>
  <p>Hi {{.RecipientName}},</p>
  <p>Order <strong>{{.OrderUID}}</strong> is ready. Show the attached codes at the entrance.</p>
  <p>{{.EventName}}<br>{{.Location}}<br>{{.StartsAt}}</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><th align="left">Item</th><th align="left">Code</th><th align="right">Price</th></tr>
    {{range .Items}}<tr><td>{{.Label}}</td><td>{{.Code}}</td><td align="right">{{.Price}}</td></tr>
    {{end}}
  </table>
  <p>Subtotal: {{.SubTotal}}<br>{{if .Discount}}Discount{{if .DiscountCode}} ({{.DiscountCode}}){{end}}: -{{.Discount}}<br>{{end}}Tax: {{.Tax}}<br><strong>Total: {{.Total}}</strong></p>
  {{if .Pending}}<p>{{.Pending}} of your codes are still being prepared and will follow.</p>{{end}}
</body>
</html>`))

type confirmationLine struct {
	Label string
	Code  string
	Price string
}

type confirmationView struct {
	RecipientName string
	EventName     string
	Location      string
	StartsAt      string
	OrderUID      string
	Items         []confirmationLine
	SubTotal      string
	Discount      string
	DiscountCode  string
	Tax           string
	Total         string
	Pending       int
}

// Composer renders the order confirmation email.
type Composer struct{}

// Confirmation builds the message for order. Items without an issued
// artifact are listed but counted as pending.
func (Composer) Confirmation(user *models.User, event *models.Event, order *models.Order, attachments []Attachment) (Message, error) {
	cur := event.Currency
	view := confirmationView{
		RecipientName: user.FullName,
		EventName:     event.Name,
		Location:      event.Location,
		StartsAt:      utils.FormatEventTime(event.StartsAt, event.Timezone),
		OrderUID:      order.OrderUID,
		SubTotal:      FormatMoney(order.SubTotal, cur),
		DiscountCode:  order.DiscountCode,
		Tax:           FormatMoney(order.TaxTotal, cur),
		Total:         FormatMoney(order.GrandTotal, cur),
	}
	if view.RecipientName == "" {
		view.RecipientName = user.Email
	}
	if order.DiscountAmount.IsPositive() {
		view.Discount = FormatMoney(order.DiscountAmount, cur)
	}
	for _, item := range order.Items {
		code := models.ScannableCode(item.EventID, item.ID)
		if !item.HasArtifact() {
			view.Pending++
			code += " (pending)"
		}
		view.Items = append(view.Items, confirmationLine{
			Label: itemLabel(item.ItemKind),
			Code:  code,
			Price: FormatMoney(item.UnitPrice, cur),
		})
	}

	var body bytes.Buffer
	if err := confirmationTmpl.Execute(&body, view); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}
	return Message{
		To:          user.Email,
		Subject:     fmt.Sprintf("Your tickets for %s (order %s)", event.Name, order.OrderUID),
		HTMLBody:    body.String(),
		Attachments: attachments,
	}, nil
}

func FormatMoney(amount decimal.Decimal, currency string) string {
	return strings.TrimSpace(currency + " " + amount.StringFixed(2))
}

func itemLabel(kind models.ItemKind) string {
	switch kind {
	case models.ItemKindTicket:
		return "Ticket"
	case models.ItemKindTicketPricedSlot:
		return "Ticket (time slot)"
	case models.ItemKindAddon:
		return "Add-on"
	case models.ItemKindPackage:
		return "Package"
	case models.ItemKindAppointment:
		return "Appointment"
	default:
		return string(kind)
	}
}
