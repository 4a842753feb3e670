/*
Conversions between config floats and SDK math decimals.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// Float64ToDec converts a float64 to a LegacyDec using its shortest decimal
// form, so 0.01 becomes exactly 0.01 rather than its binary approximation.
func Float64ToDec(v float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %f", ErrNotFinite, v)
	}
	dec, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(v, 'f', -1, 64))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec, nil
}
