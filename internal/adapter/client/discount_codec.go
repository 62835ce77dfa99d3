package client

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of discount.proto.
const (
	getDiscountRequestProductName protowire.Number = 1

	couponID          protowire.Number = 1
	couponProductName protowire.Number = 2
	couponDescription protowire.Number = 3
	couponAmount      protowire.Number = 4
)

type wireMessage interface {
	marshalWire() []byte
	unmarshalWire(b []byte) error
}

type GetDiscountRequest struct {
	ProductName string
}

func (m *GetDiscountRequest) marshalWire() []byte {
	var b []byte
	if m.ProductName != "" {
		b = protowire.AppendTag(b, getDiscountRequestProductName, protowire.BytesType)
		b = protowire.AppendString(b, m.ProductName)
	}
	return b
}

func (m *GetDiscountRequest) unmarshalWire(b []byte) error {
	*m = GetDiscountRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == getDiscountRequestProductName && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.ProductName = v
			return n, nil
		}
		return -1, nil
	})
}

// CouponModel is the discount service's reply. A product without a coupon
// comes back with Amount 0.
type CouponModel struct {
	ID          int32
	ProductName string
	Description string
	Amount      int32
}

func (m *CouponModel) marshalWire() []byte {
	var b []byte
	if m.ID != 0 {
		b = protowire.AppendTag(b, couponID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.ID)))
	}
	if m.ProductName != "" {
		b = protowire.AppendTag(b, couponProductName, protowire.BytesType)
		b = protowire.AppendString(b, m.ProductName)
	}
	if m.Description != "" {
		b = protowire.AppendTag(b, couponDescription, protowire.BytesType)
		b = protowire.AppendString(b, m.Description)
	}
	if m.Amount != 0 {
		b = protowire.AppendTag(b, couponAmount, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.Amount)))
	}
	return b
}

func (m *CouponModel) unmarshalWire(b []byte) error {
	*m = CouponModel{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == couponID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ID = int32(v)
			return n, nil
		case num == couponProductName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.ProductName = v
			return n, nil
		case num == couponDescription && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Description = v
			return n, nil
		case num == couponAmount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Amount = int32(v)
			return n, nil
		}
		return -1, nil
	})
}

// consumeFields walks b field by field. field returns the bytes it consumed, or
// -1 to have the value skipped as unknown.
func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n == -1 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// wireCodec is a grpc encoding.Codec for the hand-written discount messages.
// It registers under the "proto" content subtype so the server sees a regular
// protobuf call.
type wireCodec struct{}

func (wireCodec) Name() string { return "proto" }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("discount codec: cannot marshal %T", v)
	}
	return m.marshalWire(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("discount codec: cannot unmarshal into %T", v)
	}
	return m.unmarshalWire(data)
}
