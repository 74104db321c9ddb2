package handler

import (
	"time"

	"github.com/go-faster/jx"
	ogenjson "github.com/ogen-go/ogen/json"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/order"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

// createOrderRequest is {"items": [{"productId", "quantity"}]}.
type createOrderRequest struct {
	Items []order.LineRequest
}

func (s *createOrderRequest) Decode(d *jx.Decoder) error {
	return fields(d, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var line order.LineRequest
			err := fields(d, func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "productId":
					line.ProductID, err = d.Str()
				case "quantity":
					line.Quantity, err = d.Int()
				default:
					err = d.Skip()
				}
				return err
			})
			s.Items = append(s.Items, line)
			return err
		})
	})
}

// codeRequest is {"code"}, used to apply a discount and to validate a
// promotion.
type codeRequest struct {
	Code string
}

func (s *codeRequest) Decode(d *jx.Decoder) error {
	return fields(d, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		s.Code, err = d.Str()
		return err
	})
}

// validateVoucherRequest is {"code", "subtotal"}.
type validateVoucherRequest struct {
	codeRequest
	Subtotal decimal.Decimal
}

func (s *validateVoucherRequest) Decode(d *jx.Decoder) error {
	return fields(d, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			s.Code, err = d.Str()
		case "subtotal":
			s.Subtotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// ruleFields decodes the fields vouchers and promotions share.
type ruleFields struct {
	Code           *string
	DiscountType   *discount.Type
	DiscountValue  *decimal.Decimal
	ExpirationDate *time.Time
	UsageLimit     *int
	IsActive       *bool
	Version        *int64
}

func (s *ruleFields) decodeField(d *jx.Decoder, key string) (bool, error) {
	switch key {
	case "code":
		v, err := d.Str()
		s.Code = &v
		return true, err
	case "discountType":
		v, err := d.Str()
		t := discount.Type(v)
		s.DiscountType = &t
		return true, err
	case "discountValue":
		v, err := decodeDecimal(d)
		s.DiscountValue = &v
		return true, err
	case "expirationDate":
		v, err := ogenjson.DecodeDateTime(d)
		s.ExpirationDate = &v
		return true, err
	case "usageLimit":
		v, err := d.Int()
		s.UsageLimit = &v
		return true, err
	case "isActive":
		v, err := d.Bool()
		s.IsActive = &v
		return true, err
	case "version":
		v, err := d.Int64()
		s.Version = &v
		return true, err
	}
	return false, nil
}

// voucherRequest is the body of voucher create and update. A null
// minOrderValue on update removes the minimum.
type voucherRequest struct {
	ruleFields
	MinOrderValue    *decimal.Decimal
	HasMinOrderValue bool
}

func (s *voucherRequest) Decode(d *jx.Decoder) error {
	return fields(d, func(d *jx.Decoder, key string) error {
		if ok, err := s.decodeField(d, key); ok {
			return err
		}
		if key != "minOrderValue" {
			return d.Skip()
		}
		var err error
		s.HasMinOrderValue = true
		s.MinOrderValue, err = decodeOptionalDecimal(d)
		return err
	})
}

func (s *voucherRequest) input() voucher.Input {
	in := voucher.Input{
		MinOrderValue: s.MinOrderValue,
		IsActive:      s.IsActive,
	}
	if s.Code != nil {
		in.Code = *s.Code
	}
	if s.DiscountType != nil {
		in.DiscountType = *s.DiscountType
	}
	if s.DiscountValue != nil {
		in.DiscountValue = *s.DiscountValue
	}
	if s.ExpirationDate != nil {
		in.ExpirationDate = *s.ExpirationDate
	}
	if s.UsageLimit != nil {
		in.UsageLimit = *s.UsageLimit
	}
	return in
}

func (s *voucherRequest) patch() voucher.Patch {
	return voucher.Patch{
		DiscountType:   s.DiscountType,
		DiscountValue:  s.DiscountValue,
		ExpirationDate: s.ExpirationDate,
		UsageLimit:     s.UsageLimit,
		MinOrderValue:  s.MinOrderValue,
		ClearMinOrder:  s.HasMinOrderValue && s.MinOrderValue == nil,
		IsActive:       s.IsActive,
		Version:        s.Version,
	}
}

// promotionRequest is the body of promotion create and update. A present
// eligibility list replaces the stored one.
type promotionRequest struct {
	ruleFields
	EligibleCategories []string
	EligibleItems      []string
}

func (s *promotionRequest) Decode(d *jx.Decoder) error {
	return fields(d, func(d *jx.Decoder, key string) error {
		if ok, err := s.decodeField(d, key); ok {
			return err
		}
		var err error
		switch key {
		case "eligibleCategories":
			s.EligibleCategories, err = decodeStrings(d)
		case "eligibleItems":
			s.EligibleItems, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

func (s *promotionRequest) input() promotion.Input {
	in := promotion.Input{
		EligibleCategories: s.EligibleCategories,
		EligibleItems:      s.EligibleItems,
		IsActive:           s.IsActive,
	}
	if s.Code != nil {
		in.Code = *s.Code
	}
	if s.DiscountType != nil {
		in.DiscountType = *s.DiscountType
	}
	if s.DiscountValue != nil {
		in.DiscountValue = *s.DiscountValue
	}
	if s.ExpirationDate != nil {
		in.ExpirationDate = *s.ExpirationDate
	}
	if s.UsageLimit != nil {
		in.UsageLimit = *s.UsageLimit
	}
	return in
}

func (s *promotionRequest) patch() promotion.Patch {
	return promotion.Patch{
		DiscountType:       s.DiscountType,
		DiscountValue:      s.DiscountValue,
		ExpirationDate:     s.ExpirationDate,
		UsageLimit:         s.UsageLimit,
		EligibleCategories: s.EligibleCategories,
		EligibleItems:      s.EligibleItems,
		IsActive:           s.IsActive,
		Version:            s.Version,
	}
}
