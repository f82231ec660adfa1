package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount string
		code   string
		want   string
	}{
		{"12.3456", "USD", "12.35 USD"},
		{"12.5", "eur", "12.50 EUR"},
		{"1200.4", "JPY", "1200 JPY"},
		{"3.14159", "KWD", "3.142 KWD"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatAmount(decimal.RequireFromString(tc.amount), tc.code))
		})
	}
}
