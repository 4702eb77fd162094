package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/petalcraft/checkout/internal/domain/order"
	"github.com/petalcraft/checkout/internal/domain/product"
)

// checkoutReq is the body of the quote and order endpoints.
type checkoutReq struct {
	Items            []order.Item
	CouponCodes      []string
	ShippingProvider string
}

func decodeCheckoutReq(data []byte) (checkoutReq, error) {
	var req checkoutReq
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "couponCodes":
			return d.Arr(func(d *jx.Decoder) error {
				code, err := d.Str()
				if err != nil {
					return err
				}
				req.CouponCodes = append(req.CouponCodes, code)
				return nil
			})
		case "couponCode":
			// Single-code form kept for older clients.
			code, err := d.Str()
			if err != nil {
				return err
			}
			if code != "" {
				req.CouponCodes = append(req.CouponCodes, code)
			}
			return nil
		case "shippingProvider":
			v, err := d.Str()
			req.ShippingProvider = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return checkoutReq{}, errors.Wrap(err, "decode checkout request")
	}
	return req, nil
}

func decodeItem(d *jx.Decoder) (order.Item, error) {
	var item order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			item.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			item.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	return item, err
}

// Money is encoded as a string with two decimals so clients never see
// binary floating point amounts.
func encodeMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v.StringFixed(2)) })
}

func encodeStrings(e *jx.Encoder, name string, vs []string) {
	e.Field(name, func(e *jx.Encoder) {
		e.ArrStart()
		for _, v := range vs {
			e.Str(v)
		}
		e.ArrEnd()
	})
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for _, p := range products {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
			e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
			e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
			encodeMoney(e, "price", p.Price)
			encodeStrings(e, "collections", p.Collections)
			e.Field("nsfw", func(e *jx.Encoder) { e.Bool(p.NSFW) })
		})
	}
	e.ArrEnd()
}

func encodeQuoteFields(e *jx.Encoder, q *order.Quote) {
	e.Field("lines", func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range q.Lines {
			e.Obj(func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
				encodeMoney(e, "unitPrice", l.UnitPrice)
				encodeMoney(e, "discount", l.Discount)
			})
		}
		e.ArrEnd()
	})
	e.Field("paymentLines", func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range q.PaymentLines {
			e.Obj(func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
				encodeMoney(e, "unitAmount", l.UnitAmount)
			})
		}
		e.ArrEnd()
	})
	encodeMoney(e, "subtotal", q.Subtotal)
	e.Field("shipping", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("provider", func(e *jx.Encoder) { e.Str(q.ShippingProvider) })
			encodeMoney(e, "fee", q.ShippingFee)
			encodeMoney(e, "discount", q.ShippingDiscount)
		})
	})
	encodeMoney(e, "discountTotal", q.DiscountTotal)
	encodeMoney(e, "total", q.Total)
	encodeStrings(e, "couponCodes", q.CouponCodes)
	e.Field("appliedCoupons", func(e *jx.Encoder) {
		e.ArrStart()
		for _, a := range q.Applied {
			e.Obj(func(e *jx.Encoder) {
				e.Field("kind", func(e *jx.Encoder) { e.Str(string(a.Kind)) })
				e.Field("code", func(e *jx.Encoder) { e.Str(a.Code) })
				encodeMoney(e, "discount", a.Discount)
			})
		}
		e.ArrEnd()
	})
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.Obj(func(e *jx.Encoder) { encodeQuoteFields(e, q) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339)) })
		encodeQuoteFields(e, &o.Quote)
	})
}

func encodeError(e *jx.Encoder, code int, msg string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
}
