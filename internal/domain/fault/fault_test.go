package fault

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

var errSample = New(RuleUnusable, "SAMPLE_EXPIRED", "sample expired")

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode string
		wantMsg  string
	}{
		{
			name:     "sentinel",
			err:      errSample,
			wantKind: RuleUnusable,
			wantCode: "SAMPLE_EXPIRED",
			wantMsg:  "sample expired",
		},
		{
			name:     "wrapped sentinel",
			err:      errors.Wrap(errSample, "validate"),
			wantKind: RuleUnusable,
			wantCode: "SAMPLE_EXPIRED",
			wantMsg:  "sample expired",
		},
		{
			name:     "fmt wrapped",
			err:      fmt.Errorf("outer: %w", errSample),
			wantKind: RuleUnusable,
			wantCode: "SAMPLE_EXPIRED",
			wantMsg:  "sample expired",
		},
		{
			name:     "invalid with detail",
			err:      Invalid("discountValue must be at most 100"),
			wantKind: InvalidInput,
			wantCode: "INVALID_INPUT",
			wantMsg:  "discountValue must be at most 100",
		},
		{
			name:     "unclassified",
			err:      errors.New("connection reset"),
			wantKind: Internal,
			wantCode: "INTERNAL",
			wantMsg:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantCode, CodeOf(tt.err))
			assert.Equal(t, tt.wantMsg, MessageOf(tt.err))
		})
	}
}

func TestInvalidMatchesSentinel(t *testing.T) {
	err := errors.Wrap(Invalid("bad code"), "create voucher")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "cap_exhausted", CapExhausted.String())
	assert.Equal(t, "unknown", Kind(200).String())
}

func TestDetailKeepsClassification(t *testing.T) {
	base := New(NotFound, "PRODUCT_NOT_FOUND", "product not found")
	err := Detail(base, "product p-9 not found")

	assert.ErrorIs(t, err, base)
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, "PRODUCT_NOT_FOUND", CodeOf(err))
	assert.Equal(t, "product p-9 not found", MessageOf(err))
}
