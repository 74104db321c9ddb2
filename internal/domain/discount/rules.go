package discount

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/fault"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,32}$`)

// CodeRules validate a normalized voucher or promotion code.
var CodeRules = []validation.Rule{
	validation.Required,
	validation.Match(codePattern).Error("must be 3-32 uppercase letters or digits"),
}

// TypeRules validate a discount type.
var TypeRules = []validation.Rule{
	validation.Required,
	validation.In(Percentage, Fixed).Error("must be PERCENTAGE or FIXED"),
}

// ValueRule validates a discount value for the given type: strictly
// positive, and at most 100 for percentages.
func ValueRule(t Type) validation.Rule {
	return validation.By(func(value any) error {
		v, ok := value.(decimal.Decimal)
		if !ok {
			return errors.New("must be a decimal")
		}
		if !v.IsPositive() {
			return errors.New("must be greater than 0")
		}
		if t == Percentage && v.GreaterThan(hundred) {
			return errors.New("must be at most 100 for PERCENTAGE")
		}
		return nil
	})
}

// FutureRule validates that a time lies after now.
func FutureRule(now time.Time) validation.Rule {
	return validation.By(func(value any) error {
		t, ok := value.(time.Time)
		if !ok {
			return errors.New("must be a time")
		}
		if !t.After(now) {
			return errors.New("must be in the future")
		}
		return nil
	})
}

// NonNegativeRule validates an optional decimal that must not be negative.
var NonNegativeRule = validation.By(func(value any) error {
	switch v := value.(type) {
	case *decimal.Decimal:
		if v != nil && v.IsNegative() {
			return errors.New("must not be negative")
		}
	case decimal.Decimal:
		if v.IsNegative() {
			return errors.New("must not be negative")
		}
	}
	return nil
})

// InputError converts an ozzo validation result into a classified error.
func InputError(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return errors.Wrap(err, "validate input")
	}
	return fault.Invalid(err.Error())
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NormalizePage clamps listing parameters: page starts at 1, a missing limit
// becomes DefaultPageLimit and larger ones are capped at MaxPageLimit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	return page, limit
}

// Reactivates reports whether an update that moves an expired rule's
// expiration into the future should switch the rule back on. The expiry
// sweep deactivates expired rules, so extending one implies reopening it;
// an explicit isActive in the same update wins.
func Reactivates(wasExpired bool, newExpiration *time.Time, isActive *bool, now time.Time) bool {
	return wasExpired && newExpiration != nil && isActive == nil && newExpiration.After(now)
}
