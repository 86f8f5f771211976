package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateAmount(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"30.00", true},
		{"0.01", true},
		{"12.5", true},
		{"0", false},
		{"-5.00", false},
		{"1.005", false},
	}
	for _, tc := range cases {
		err := ValidateAmount(decimal.RequireFromString(tc.in))
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: want ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestValidateSignedAmount(t *testing.T) {
	if err := ValidateSignedAmount(decimal.RequireFromString("-20.00")); err != nil {
		t.Fatalf("negative adjustment rejected: %v", err)
	}
	if err := ValidateSignedAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero adjustment: want ErrInvalidAmount, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 99.90 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertMoney(t, "parsed", "99.90", d)

	for _, raw := range []string{"", "abc", "-1", "0.001"} {
		if _, err := ParseAmount(raw); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q: want ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestMinorUnits(t *testing.T) {
	if got := Minor(decimal.RequireFromString("123.45")); got != 12345 {
		t.Fatalf("Minor: got %d", got)
	}
	assertMoney(t, "FromMinor", "0.99", FromMinor(99))
}
