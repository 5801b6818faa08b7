package enums

import "testing"

func TestPaymentStatusDomain(t *testing.T) {
	for _, value := range []string{"unpaid", "pending", "paid", "failed", "refunded"} {
		status, err := ParsePaymentStatus(value)
		if err != nil {
			t.Errorf("ParsePaymentStatus(%q): %v", value, err)
			continue
		}
		if !status.IsValid() || status.String() != value {
			t.Errorf("unexpected status %q for %q", status, value)
		}
	}
}

func TestParsePaymentStatusRejectsUnknown(t *testing.T) {
	for _, value := range []string{"", "PAID", "reembolsado"} {
		if _, err := ParsePaymentStatus(value); err == nil {
			t.Errorf("ParsePaymentStatus(%q) must fail", value)
		}
	}
}
