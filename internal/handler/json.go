package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/conv"
	ogenjson "github.com/ogen-go/ogen/json"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/fault"
)

const maxBodySize = 1 << 20

var errMalformedBody = fault.New(fault.InvalidInput, "MALFORMED_BODY", "request body is not a valid JSON object")

// schema is a request body that decodes itself from a JSON object.
type schema interface {
	Decode(d *jx.Decoder) error
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody decodes the request body into s. Syntax errors are reported as
// MALFORMED_BODY, values of the wrong type as INVALID_INPUT.
func decodeBody(r *http.Request, s schema) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fault.Detail(errMalformedBody, "request body is empty")
	}
	if !jx.Valid(body) {
		return fault.Detail(errMalformedBody, "malformed JSON body")
	}

	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return errMalformedBody
	}
	return s.Decode(d)
}

// fields iterates an object, attributing any non-domain error to the field
// it came from.
func fields(d *jx.Decoder, fn func(d *jx.Decoder, key string) error) error {
	return d.ObjBytes(func(d *jx.Decoder, k []byte) error {
		key := string(k)
		if err := fn(d, key); err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) {
				return err
			}
			return fault.Invalid(fmt.Sprintf("invalid value for %s", key))
		}
		return nil
	})
}

// decodeDecimal accepts both "12.50" and 12.50.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	raw, err := d.Raw()
	if err != nil {
		return decimal.Zero, err
	}
	var v decimal.Decimal
	if err := v.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

// decodeOptionalDecimal returns nil for a JSON null.
func decodeOptionalDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeStrings returns a non-nil slice, so an explicit [] is distinguishable
// from an absent field.
func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	ogenjson.EncodeDateTime(e, t.UTC())
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := conv.ToInt(raw)
	if err != nil {
		return 0, fault.Invalid(name + " must be an integer")
	}
	return v, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := conv.ToBool(raw)
	if err != nil {
		return nil, fault.Invalid(name + " must be true or false")
	}
	return &v, nil
}
