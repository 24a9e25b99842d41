package giftcards

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"fernway/models"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
	"go.mongodb.org/mongo-driver/bson"
)

// QRPayload returns the signed string embedded in a voucher QR:
// code|balance-cents|timestamp|signature. The signature lets the store verify
// a scanned voucher without a database round trip.
func (s *Service) QRPayload(card *models.GiftCard, now time.Time) string {
	data := fmt.Sprintf("%s|%d|%d", card.Code, int64(card.Balance*100), now.Unix())

	h := hmac.New(sha256.New, s.Secret)
	h.Write([]byte(data))
	sig := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return fmt.Sprintf("%s|%s", data, sig)
}

// VerifyPayload checks the signature on a scanned voucher payload.
func (s *Service) VerifyPayload(payload string) bool {
	idx := lastPipe(payload)
	if idx < 0 {
		return false
	}
	data, sig := payload[:idx], payload[idx+1:]

	h := hmac.New(sha256.New, s.Secret)
	h.Write([]byte(data))
	want := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(want), []byte(sig))
}

func lastPipe(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '|' {
			return i
		}
	}
	return -1
}

// PrintVoucher renders a printable PDF voucher for a gift card, with a signed
// QR code for in-store scanning.
func (s *Service) PrintVoucher(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var card models.GiftCard
	if err := s.GiftCards.FindOne(ctx, bson.M{"code": ps.ByName("code")}).Decode(&card); err != nil {
		http.Error(w, "Gift card not found", http.StatusNotFound)
		return
	}

	qrPNG, err := qrcode.Encode(s.QRPayload(&card, time.Now()), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Gift Card")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 10, fmt.Sprintf("Code: %s", card.Code))
	pdf.Ln(8)
	pdf.Cell(0, 10, fmt.Sprintf("Amount: $%.2f", card.Amount))
	pdf.Ln(8)
	pdf.Cell(0, 10, fmt.Sprintf("Balance: $%.2f", card.Balance))
	pdf.Ln(8)
	if card.Recipient.Name != "" {
		pdf.Cell(0, 10, fmt.Sprintf("To: %s", card.Recipient.Name))
		pdf.Ln(8)
	}
	if card.Sender.Name != "" {
		pdf.Cell(0, 10, fmt.Sprintf("From: %s", card.Sender.Name))
		pdf.Ln(8)
	}
	if card.Message != "" {
		pdf.MultiCell(0, 8, card.Message, "", "L", false)
		pdf.Ln(4)
	}

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 40, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		http.Error(w, "Failed to generate PDF", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=giftcard-"+card.Code+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
