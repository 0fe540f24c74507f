package settlement

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary amount in øre.
type Amount int64

const maxAmount = Amount(1<<63 - 1)

// maxExponent bounds the exponent of exponent-form amounts. Anything
// larger is out of range for int64 øre anyway.
const maxExponent = 20

// ParseAmount parses a decimal kroner amount exactly, e.g. "9093.00",
// "-12.5" or "400". Exponent form as allowed by JSON ("9.093e3", "15E-1")
// is accepted when the value has at most two decimals once the exponent is
// applied.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	mantissa, exp, err := splitExponent(s)
	if err != nil {
		return 0, err
	}

	whole, frac, hasFrac := strings.Cut(mantissa, ".")
	if whole == "" || !digitsOnly(whole) || (hasFrac && (frac == "" || !digitsOnly(frac))) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if exp != 0 {
		whole, frac = shiftPoint(whole, frac, exp)
		frac = strings.TrimRight(frac, "0")
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	kr, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	ore, _ := strconv.ParseInt(frac, 10, 64)
	if kr > (1<<63-1-ore)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}

	v := Amount(kr*100 + ore)
	if neg {
		v = -v
	}
	return v, nil
}

// splitExponent separates "1.5e3" into "1.5" and 3.
func splitExponent(s string) (string, int, error) {
	i := strings.IndexAny(s, "eE")
	if i < 0 {
		return s, 0, nil
	}
	exp, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid amount %q", s)
	}
	if exp > maxExponent || exp < -maxExponent {
		return "", 0, fmt.Errorf("amount %q out of range", s)
	}
	return s[:i], exp, nil
}

// shiftPoint moves the decimal point of whole.frac by exp places.
func shiftPoint(whole, frac string, exp int) (string, string) {
	digits := whole + frac
	point := len(whole) + exp
	switch {
	case point <= 0:
		return "0", strings.Repeat("0", -point) + digits
	case point >= len(digits):
		return digits + strings.Repeat("0", point-len(digits)), ""
	default:
		return digits[:point], digits[point:]
	}
}

// Add returns a+b and false when the sum overflows int64 øre.
func (a Amount) Add(b Amount) (Amount, bool) {
	if (b > 0 && a > maxAmount-b) || (b < 0 && a < -maxAmount-1-b) {
		return 0, false
	}
	return a + b, true
}

// String formats the amount with two decimals.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
