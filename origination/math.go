package origination

import "math/big"

var basisPoints = big.NewInt(10_000)

// halfUp returns ceil(x/2) for positive x, used for round-half-up division.
func halfUp(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return big.NewInt(0)
	}
	half := new(big.Int).Add(x, big.NewInt(1))
	half.Rsh(half, 1)
	return half
}

// divHalfUp divides a by b rounding half away from zero. b must be positive.
func divHalfUp(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(a, big.NewInt(2))
	num.Add(num, b)
	num.Quo(num, new(big.Int).Mul(b, big.NewInt(2)))
	return num
}

// mulBps applies a basis-point rate to an amount, rounding half up.
func mulBps(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	product.Add(product, halfUp(basisPoints))
	product.Quo(product, basisPoints)
	return product
}

// ratToIntHalfUp converts a rational to an integer rounding half up.
func ratToIntHalfUp(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	num.Add(num, halfUp(den))
	num.Quo(num, den)
	return num
}

// powRat raises r to the n-th power by squaring. Payment schedules cap n at
// twelve so the denominators stay small.
func powRat(r *big.Rat, n uint64) *big.Rat {
	result := big.NewRat(1, 1)
	base := new(big.Rat).Set(r)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
		n >>= 1
	}
	return result
}

// precisionTolerance returns the rounding slack granted when comparing token
// amounts: one hundredth of a whole token at the given decimal precision. It
// absorbs rounding noise between locally-computed and ledger-computed
// figures, not real deficits.
func precisionTolerance(decimals uint8) *big.Int {
	if decimals < 2 {
		return big.NewInt(0)
	}
	tolerance := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-2)), nil)
	return tolerance
}
