package feeds_test

import (
	"errors"
	"strings"
	"testing"

	"planet/internal/feeds"
	"planet/internal/services"
)

const validAddress = "k51qzi5uqu5dioq5on1s4oc3wg2t13w03xxsq32b1qovi61b6oi8pcyep2gsyf"

func TestValidateAddress(t *testing.T) {
	if err := feeds.ValidateAddress(validAddress); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}
	invalid := []string{
		"",
		validAddress[:61],
		"k52" + validAddress[3:],
		strings.ToUpper(validAddress),
		validAddress[:61] + "_",
	}
	for _, addr := range invalid {
		if err := feeds.ValidateAddress(addr); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ValidateAddress(%q) = %v, want validation error", addr, err)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "  " + validAddress + "  ", want: validAddress},
		{input: "ipns://" + validAddress, want: validAddress},
		{input: "/ipns/" + validAddress + "/", want: validAddress},
		{input: "IPNS://" + strings.ToUpper(validAddress), want: validAddress},
	}
	for _, tc := range cases {
		if got := feeds.NormalizeAddress(tc.input); got != tc.want {
			t.Fatalf("NormalizeAddress(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
