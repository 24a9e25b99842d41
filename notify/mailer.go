// Package notify sends transactional email and runs the abandoned-cart
// sweeper. All sends are fire-and-forget: a mail failure is logged, never
// surfaced to the request that triggered it.
package notify

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"fernway/config"
	"fernway/models"
)

type Mailer struct {
	host     string
	port     string
	from     string
	password string
	frontend string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		password: cfg.SMTPPassword,
		frontend: cfg.FrontendURL,
	}
}

func (m *Mailer) send(to, subject, body string) {
	if m.from == "" || to == "" {
		return
	}
	go func() {
		msg := []byte("Subject: " + subject + "\nTo: " + to + "\n\n" + body)
		auth := smtp.PlainAuth("", m.from, m.password, m.host)
		if err := smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, msg); err != nil {
			log.Printf("mail to %s failed: %v", to, err)
		}
	}()
}

// OrderConfirmation mails the order summary after checkout.
func (m *Mailer) OrderConfirmation(order *models.Order) {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s!\n\n", order.ID)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %dx %s", item.Quantity, item.Name)
		if item.Size != "" {
			fmt.Fprintf(&b, " (%s)", item.Size)
		}
		fmt.Fprintf(&b, " - $%.2f\n", item.Price*float64(item.Quantity))
	}
	fmt.Fprintf(&b, "\nSubtotal: $%.2f\n", order.Subtotal)
	fmt.Fprintf(&b, "Tax: $%.2f\n", order.Tax)
	fmt.Fprintf(&b, "Shipping: $%.2f\n", order.Shipping)
	if order.DiscountAmount > 0 {
		fmt.Fprintf(&b, "Discount: -$%.2f\n", order.DiscountAmount)
	}
	if order.GiftCardUsed > 0 {
		fmt.Fprintf(&b, "Gift card: -$%.2f\n", order.GiftCardUsed)
	}
	fmt.Fprintf(&b, "Total: $%.2f\n\n", order.Total)
	fmt.Fprintf(&b, "Track your order at %s/orders/%s\n", m.frontend, order.ID)

	m.send(order.Email, "Your Fernway order "+order.ID, b.String())
}

// OrderStatus mails the customer when an order changes status.
func (m *Mailer) OrderStatus(order *models.Order) {
	var b strings.Builder
	fmt.Fprintf(&b, "Your order %s is now %s.\n", order.ID, order.Status)
	if order.TrackingNumber != "" {
		fmt.Fprintf(&b, "Tracking number: %s\n", order.TrackingNumber)
	}
	fmt.Fprintf(&b, "\nView your order at %s/orders/%s\n", m.frontend, order.ID)

	m.send(order.Email, "Order "+order.ID+" update: "+order.Status, b.String())
}

// AbandonedCart nudges a customer back to a cart they left behind.
func (m *Mailer) AbandonedCart(email string, cart *models.Cart) {
	var b strings.Builder
	b.WriteString("You left some items in your cart:\n\n")
	for _, item := range cart.Items {
		fmt.Fprintf(&b, "  %dx %s - $%.2f\n", item.Quantity, item.Name, item.Price*float64(item.Quantity))
	}
	fmt.Fprintf(&b, "\nPick up where you left off: %s/cart/%s\n", m.frontend, cart.ID)

	m.send(email, "Still thinking it over?", b.String())
}

// GiftCardIssued mails a digital gift card to its recipient.
func (m *Mailer) GiftCardIssued(card *models.GiftCard) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s sent you a $%.2f Fernway gift card!\n\n", card.Sender.Name, card.Amount)
	fmt.Fprintf(&b, "Code: %s\n", card.Code)
	if card.Message != "" {
		fmt.Fprintf(&b, "\n%q\n", card.Message)
	}
	fmt.Fprintf(&b, "\nRedeem it at %s/gift-cards\n", m.frontend)

	m.send(card.Recipient.Email, "You received a Fernway gift card", b.String())
}
