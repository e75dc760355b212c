package notification

import (
	"fmt"
	"html"
	"strings"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

// Message is a rendered notification, ready for any channel
type Message struct {
	Subject string
	Text    string // Telegram
	HTML    string // Email body
}

// Render builds the channel-appropriate message for a terminal
// settlement. All variants include amount, asset, counterparty, tx
// hash when present, and a human status line.
func Render(record *entities.FinancialRecord, state entities.SettlementState, evidence entities.SettlementEvidence) Message {
	noun := recordNoun(record.Kind)
	amount := fmt.Sprintf("%s %s", record.Amount.String(), record.Asset)

	var headline, statusLine string
	if state == entities.SettlementStateSettled {
		headline = fmt.Sprintf("Payment received — %s", amount)
		statusLine = fmt.Sprintf("Your %s has been paid.", noun)
	} else {
		headline = fmt.Sprintf("Payment failed — %s", amount)
		statusLine = fmt.Sprintf("A payment for your %s did not go through.", noun)
	}

	counterparty := "an external payer"
	if evidence.PayerAddress != nil && *evidence.PayerAddress != "" {
		counterparty = shortAddress(*evidence.PayerAddress)
	}

	var details []string
	details = append(details, fmt.Sprintf("Amount: %s", amount))
	details = append(details, fmt.Sprintf("From: %s", counterparty))
	if record.Description != "" {
		details = append(details, fmt.Sprintf("For: %s", record.Description))
	}
	if evidence.TxHash != nil && *evidence.TxHash != "" {
		details = append(details, fmt.Sprintf("Tx: %s", *evidence.TxHash))
	}

	text := fmt.Sprintf("%s\n%s\n\n%s", headline, statusLine, strings.Join(details, "\n"))

	var htmlDetails strings.Builder
	for _, line := range details {
		htmlDetails.WriteString(fmt.Sprintf(
			`<p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:14px;color:#424245;margin:0 0 8px 0;line-height:1.5;">%s</p>`,
			html.EscapeString(line)))
	}

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#f5f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f5f5f7;padding:40px 20px;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:16px;overflow:hidden;">
<tr><td style="padding:40px 40px 0 40px;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:28px;font-weight:700;color:#1d1d1f;margin:0 0 8px 0;">ClearRail</p>
</td></tr>
<tr><td style="padding:32px 40px;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:22px;font-weight:600;color:#1d1d1f;margin:0 0 16px 0;">%s</p>
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:15px;color:#1d1d1f;margin:0 0 24px 0;line-height:1.5;">%s</p>
  <table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f5f5f7;border-radius:12px;"><tr><td style="padding:20px 24px;">%s</td></tr></table>
</td></tr>
</table>
</td></tr></table>
</body></html>`, html.EscapeString(headline), html.EscapeString(statusLine), htmlDetails.String())

	return Message{
		Subject: headline,
		Text:    text,
		HTML:    htmlBody,
	}
}

func recordNoun(kind entities.RecordKind) string {
	switch kind {
	case entities.RecordKindInvoice:
		return "invoice"
	case entities.RecordKindPaymentLink:
		return "payment link"
	case entities.RecordKindProposal:
		return "proposal"
	case entities.RecordKindOfframpTx:
		return "withdrawal"
	default:
		return "payment"
	}
}

// shortAddress shortens a wallet address for display (0x1234…abcd)
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
