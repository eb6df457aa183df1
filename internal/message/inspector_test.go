package message

import (
	"strings"
	"testing"
)

func buildMessage(t *testing.T, headers map[string]string, body string) []byte {
	t.Helper()
	var b strings.Builder
	for k, v := range headers {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func TestInspectSimpleInvoice(t *testing.T) {
	raw := buildMessage(t, map[string]string{
		"From":         "billing@vendor.example",
		"Subject":      "Bill",
		"Content-Type": "text/plain; charset=utf-8",
	}, "Total: 2500.00\n")

	meta := Inspect(raw)
	if meta.Amount != 2500.00 {
		t.Errorf("Amount = %v, want 2500.00", meta.Amount)
	}
	if meta.Subject != "Bill" {
		t.Errorf("Subject = %q, want %q", meta.Subject, "Bill")
	}
	if meta.Sender != "billing@vendor.example" {
		t.Errorf("Sender = %q, want %q", meta.Sender, "billing@vendor.example")
	}
}

func TestInspectThousandsSeparator(t *testing.T) {
	raw := buildMessage(t, map[string]string{
		"From":         "ap@vendor.example",
		"Subject":      "Invoice #4821",
		"Content-Type": "text/plain; charset=utf-8",
	}, "Total: 12,345.67\nThank you for your business.\n")

	meta := Inspect(raw)
	if meta.Amount != 12345.67 {
		t.Errorf("Amount = %v, want 12345.67", meta.Amount)
	}
}

func TestInspectNoAmount(t *testing.T) {
	raw := buildMessage(t, map[string]string{
		"From":         "friend@example.com",
		"Subject":      "Hello",
		"Content-Type": "text/plain; charset=utf-8",
	}, "Just checking in, no invoice here.\n")

	meta := Inspect(raw)
	if meta.Amount != 0 {
		t.Errorf("Amount = %v, want 0", meta.Amount)
	}
}

func TestInspectMalformedAmount(t *testing.T) {
	raw := buildMessage(t, map[string]string{
		"From":         "friend@example.com",
		"Subject":      "Invoice",
		"Content-Type": "text/plain; charset=utf-8",
	}, "Total: twelve dollars\n")

	meta := Inspect(raw)
	if meta.Amount != 0 {
		t.Errorf("Amount = %v, want 0 for unparseable amount", meta.Amount)
	}
}

func TestInspectTakesMaximumMatch(t *testing.T) {
	raw := buildMessage(t, map[string]string{
		"From":         "ap@vendor.example",
		"Subject":      "Invoice",
		"Content-Type": "text/plain; charset=utf-8",
	}, "Subtotal: 100.00\nTax: 8.00\nGrand Total: 108.00\n")

	meta := Inspect(raw)
	if meta.Amount != 108.00 {
		t.Errorf("Amount = %v, want 108.00 (the maximum match)", meta.Amount)
	}
}

func TestInspectSubjectAmount(t *testing.T) {
	raw := buildMessage(t, map[string]string{
		"From":         "ap@vendor.example",
		"Subject":      "Amount due: 999.99",
		"Content-Type": "text/plain; charset=utf-8",
	}, "See attached.\n")

	meta := Inspect(raw)
	if meta.Amount != 999.99 {
		t.Errorf("Amount = %v, want 999.99 from subject", meta.Amount)
	}
}

func TestInspectMultipartWalksTextPlainParts(t *testing.T) {
	raw := []byte("From: ap@vendor.example\r\n" +
		"Subject: Invoice\r\n" +
		"Content-Type: multipart/alternative; boundary=\"BOUNDARY\"\r\n" +
		"\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Total: 5000.00\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>Total: 999999.00</p>\r\n" +
		"--BOUNDARY--\r\n")

	meta := Inspect(raw)
	if meta.Amount != 5000.00 {
		t.Errorf("Amount = %v, want 5000.00 (html part must not be scanned)", meta.Amount)
	}
}

func TestInspectMalformedMessageDoesNotPanic(t *testing.T) {
	raw := []byte("this is not a valid RFC 5322 message at all \x00\x01\x02")

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Inspect panicked: %v", r)
		}
	}()

	meta := Inspect(raw)
	if meta.Amount != 0 {
		t.Errorf("Amount = %v, want 0 for malformed message", meta.Amount)
	}
}

func TestInspectEmptyLiteral(t *testing.T) {
	meta := Inspect([]byte{})
	if meta.Amount != 0 {
		t.Errorf("Amount = %v, want 0 for empty input", meta.Amount)
	}
}
