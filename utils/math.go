package utils

import (
	"math"
)

// POW is an integer power with unrolled small exponents, used for the
// dissipation operators k^n
func POW(x float64, pp int) (y float64) {
	var (
		p       = pp
		flipped bool
	)
	if pp > 8 || pp < -8 {
		goto MATHPOW
	}

	if p < 0 {
		p = -pp
		flipped = true
	}
	switch p {
	case 0:
		y = 1
	case 1:
		y = x
	case 2:
		y = x * x
	case 3:
		y = x * x * x
	case 4:
		y = x * x
		y = y * y
	case 5:
		y = x * x
		y = y * y * x
	case 6:
		y = x * x
		y = y * y * y
	case 7:
		y = x * x
		y = y * y * y * x
	case 8:
		y = x * x
		y = y * y * y * y
	}
	if flipped {
		y = 1. / y
	}
	return

MATHPOW:
	y = math.Pow(x, float64(pp))
	return
}

// Wrap returns the signed Fourier index for position i of an n point axis
func Wrap(i, n int) int {
	if i <= n/2-1 || n == 1 {
		return i
	}
	return i - n
}

// RoundTo rounds x to the given number of decimal places
func RoundTo(x float64, places int) float64 {
	scale := POW(10, places)
	return math.Round(x*scale) / scale
}
