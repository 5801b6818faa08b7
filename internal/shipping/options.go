package shipping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ServiceOption is one shipping service the store offers, parsed from the
// "name:cost:etaHours" entries in GOLOS_SHIPPING_SERVICES.
type ServiceOption struct {
	Name     string          `json:"name"`
	Cost     decimal.Decimal `json:"cost"`
	ETAHours int             `json:"eta_hours"`
}

// ParseServices parses the comma separated service catalog. Blank entries are
// skipped; a malformed entry fails the whole parse so a typo cannot silently
// drop a service.
func ParseServices(raw string) ([]ServiceOption, error) {
	var options []ServiceOption
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid shipping service entry %q", entry)
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("invalid shipping service entry %q: name required", entry)
		}
		cost, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid shipping service entry %q: %w", entry, err)
		}
		if cost.IsNegative() {
			return nil, fmt.Errorf("invalid shipping service entry %q: negative cost", entry)
		}
		eta, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || eta <= 0 {
			return nil, fmt.Errorf("invalid shipping service entry %q: bad eta hours", entry)
		}
		options = append(options, ServiceOption{Name: name, Cost: cost, ETAHours: eta})
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("no shipping services configured")
	}
	return options, nil
}

// FindOption returns the named service, case-insensitively.
func FindOption(options []ServiceOption, name string) (ServiceOption, bool) {
	for _, opt := range options {
		if strings.EqualFold(opt.Name, strings.TrimSpace(name)) {
			return opt, true
		}
	}
	return ServiceOption{}, false
}

// DefaultOption picks the cheapest service that can deliver within
// maxDeliveryHours. When nothing qualifies it falls back to the cheapest
// service overall.
func DefaultOption(options []ServiceOption, maxDeliveryHours int) (ServiceOption, bool) {
	if len(options) == 0 {
		return ServiceOption{}, false
	}
	var best *ServiceOption
	for i := range options {
		opt := options[i]
		if maxDeliveryHours > 0 && opt.ETAHours > maxDeliveryHours {
			continue
		}
		if best == nil || opt.Cost.LessThan(best.Cost) {
			best = &options[i]
		}
	}
	if best != nil {
		return *best, true
	}
	cheapest := options[0]
	for _, opt := range options[1:] {
		if opt.Cost.LessThan(cheapest.Cost) {
			cheapest = opt
		}
	}
	return cheapest, true
}
