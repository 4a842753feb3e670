package address

import "strings"

// HexPrefix is the standard prefix every Sui object id and address carries.
const HexPrefix = "0x"

// Normalize returns the canonical join key for a chain identifier: trimmed,
// lower-cased and carrying HexPrefix exactly once. It never fails; input that
// is not hex is still lower-cased and prefixed.
func Normalize(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	for strings.HasPrefix(s, HexPrefix) {
		s = s[len(HexPrefix):]
	}
	return HexPrefix + s
}

// Equal reports whether two identifiers denote the same object.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
