// Package message extracts the metadata the quarantine policy decides on
// from a raw RFC 5322 octet sequence captured off an APPEND literal.
package message

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// maxPartSize bounds how much of any one text/plain part is read into
// memory; amount extraction never needs more than a few KB of body text,
// and a hostile or enormous attachment must not balloon memory use.
const maxPartSize = 1 << 20 // 1 MiB

// Metadata is what the policy needs to decide deliver-or-hold.
type Metadata struct {
	Sender  string
	Subject string
	Amount  float64
}

// amountPattern looks for a labeled monetary figure such as
// "Total: 2,500.00", "Grand Total $199.99", or "Total: 12,345.67" in
// free text. The number alternatives, longest first, cover thousands-
// grouped amounts before falling back to a bare decimal.
var amountPattern = regexp.MustCompile(`(?i)(amount|total|sum|subtotal|grand total)\D{0,10}(\d{1,3}(?:,\d{3})+\.\d{2,}|\d+\.\d{2,}|\d+,\d{2,})`)

// Inspect parses raw as an RFC 5322 message and extracts the sender,
// subject, and the largest monetary figure mentioned in the subject or
// body. It never returns an error: a malformed or unparseable message
// yields best-effort (possibly zero-value) metadata, since the proxy
// must still decide deliver-or-hold on whatever it managed to read.
func Inspect(raw []byte) Metadata {
	var meta Metadata

	headerSender, headerSubject, body := parseMessage(raw)
	meta.Sender = headerSender
	meta.Subject = headerSubject
	meta.Amount = maxAmount(meta.Subject + "\n" + body)

	return meta
}

// parseMessage returns the From header, Subject header, and the
// concatenated text/plain body of raw, falling back to best-effort
// header access on any parse failure.
func parseMessage(raw []byte) (sender, subject, body string) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return headerFallback(raw)
	}
	if r == nil {
		return headerFallback(raw)
	}

	if s, err := r.Header.Subject(); err == nil {
		subject = s
	}
	if addrs, err := r.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		sender = addrs[0].Address
	}
	if sender == "" {
		sender = headerFallback3(raw)
	}

	var buf strings.Builder
	for {
		part, perr := r.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil && !gomessage.IsUnknownCharset(perr) {
			break
		}
		if part == nil {
			continue
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := inline.ContentType()
		if ct != "" && ct != "text/plain" {
			continue
		}

		data, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		buf.Write(data)
		buf.WriteByte('\n')
	}
	body = buf.String()

	return sender, subject, body
}

// headerFallback re-parses raw with the lenient top-level message reader
// when mail.CreateReader fails outright (e.g. a header so malformed the
// mail package gives up before returning a usable Header).
func headerFallback(raw []byte) (sender, subject, body string) {
	e, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil || e == nil {
		return "", "", ""
	}
	subject = e.Header.Get("Subject")
	sender = e.Header.Get("From")
	return sender, subject, ""
}

func headerFallback3(raw []byte) string {
	e, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil || e == nil {
		return ""
	}
	return e.Header.Get("From")
}

// maxAmount returns the largest monetary figure labeled by amountPattern
// in text, or 0 if none is found.
func maxAmount(text string) float64 {
	matches := amountPattern.FindAllStringSubmatch(text, -1)
	var max float64
	for _, m := range matches {
		if len(m) < 3 {
			continue
		}
		// A decimal point present means any commas are thousands
		// separators; strip them. Otherwise the comma is the decimal
		// separator called out in the spec and is swapped for a period.
		var normalized string
		if strings.Contains(m[2], ".") {
			normalized = strings.ReplaceAll(m[2], ",", "")
		} else {
			normalized = strings.Replace(m[2], ",", ".", 1)
		}
		v, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max
}
