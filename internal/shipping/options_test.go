package shipping

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseServices(t *testing.T) {
	options, err := ParseServices("eco:12000:72, standard:18000:48 ,express:25000:24")
	if err != nil {
		t.Fatalf("ParseServices: %v", err)
	}
	if len(options) != 3 {
		t.Fatalf("expected 3 options, got %d", len(options))
	}
	if options[1].Name != "standard" || options[1].ETAHours != 48 {
		t.Fatalf("unexpected option: %+v", options[1])
	}
	if !options[0].Cost.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("unexpected cost: %s", options[0].Cost)
	}
}

func TestParseServicesRejectsMalformedEntries(t *testing.T) {
	cases := []string{
		"",
		"eco:12000",
		"eco:abc:72",
		"eco:-100:72",
		"eco:12000:0",
		":12000:72",
		"eco:12000:72,standard:18000",
	}
	for _, raw := range cases {
		if _, err := ParseServices(raw); err == nil {
			t.Errorf("ParseServices(%q): expected error", raw)
		}
	}
}

func TestFindOptionIsCaseInsensitive(t *testing.T) {
	options, err := ParseServices("eco:12000:72,express:25000:24")
	if err != nil {
		t.Fatalf("ParseServices: %v", err)
	}
	opt, ok := FindOption(options, " EXPRESS ")
	if !ok {
		t.Fatal("expected to find express")
	}
	if opt.ETAHours != 24 {
		t.Fatalf("unexpected option: %+v", opt)
	}
	if _, ok := FindOption(options, "overnight"); ok {
		t.Fatal("expected overnight to be unknown")
	}
}

func TestDefaultOptionPrefersCheapestWithinWindow(t *testing.T) {
	options, err := ParseServices("eco:12000:96,standard:18000:48,express:25000:24")
	if err != nil {
		t.Fatalf("ParseServices: %v", err)
	}

	// eco is cheapest but too slow for a 72 hour window.
	opt, ok := DefaultOption(options, 72)
	if !ok || opt.Name != "standard" {
		t.Fatalf("expected standard, got %+v", opt)
	}

	// Nothing fits a 12 hour window, fall back to cheapest overall.
	opt, ok = DefaultOption(options, 12)
	if !ok || opt.Name != "eco" {
		t.Fatalf("expected eco fallback, got %+v", opt)
	}

	// No window means cheapest overall.
	opt, ok = DefaultOption(options, 0)
	if !ok || opt.Name != "eco" {
		t.Fatalf("expected eco, got %+v", opt)
	}
}
