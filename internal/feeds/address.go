package feeds

import (
	"fmt"
	"strings"

	"planet/internal/services"
)

// AddressLength is the length of a base36 CIDv1 libp2p-key IPNS name.
const AddressLength = 62

const (
	addressPrefix  = "k51"
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NormalizeAddress trims whitespace and any ipns:// or /ipns/ prefix and
// lowercases the result.
func NormalizeAddress(raw string) string {
	addr := strings.TrimSpace(raw)
	lower := strings.ToLower(addr)
	for _, prefix := range []string{"ipns://", "/ipns/"} {
		if strings.HasPrefix(lower, prefix) {
			addr = addr[len(prefix):]
			break
		}
	}
	return strings.ToLower(strings.Trim(addr, "/"))
}

// ValidateAddress checks the shape of an IPNS name record.
func ValidateAddress(addr string) error {
	if len(addr) != AddressLength {
		return services.Wrap(services.ErrValidation, "feeds", "address",
			fmt.Sprintf("address must be %d characters, got %d", AddressLength, len(addr)), nil)
	}
	if !strings.HasPrefix(addr, addressPrefix) {
		return services.Wrap(services.ErrValidation, "feeds", "address",
			fmt.Sprintf("address must start with %q", addressPrefix), nil)
	}
	for _, r := range addr {
		if !strings.ContainsRune(base36Alphabet, r) {
			return services.Wrap(services.ErrValidation, "feeds", "address",
				fmt.Sprintf("address contains invalid character %q", r), nil)
		}
	}
	return nil
}
