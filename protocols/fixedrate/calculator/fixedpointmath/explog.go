package fixedpointmath

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// The approximations below run on int256 values held in two's complement inside uint256.Int.
// Mul wraps, SRsh is an arithmetic shift and SDiv truncates toward zero, which reproduces EVM
// int256 semantics bit for bit.

var (
	ErrInvalidExpInput = errors.New("exp: exponent too large")
	ErrInvalidLnInput  = errors.New("ln: input must be positive")

	// ExpLowerBound is the largest exponent for which Exp returns 0 (~ -42.14).
	ExpLowerBound = mustBig("-42139678854452767551")
	// ExpUpperBound is the smallest exponent Exp rejects (~ 135.31).
	ExpUpperBound = mustBig("135305999368893231589")

	expFive18      = mustSigned("3814697265625")
	expLn2X96      = mustSigned("54916777467707473351141471128")
	expHalfX96     = new(uint256.Int).Lsh(uint256.NewInt(1), 95)
	expY0          = mustSigned("1346386616545796478920950773328")
	expY1          = mustSigned("57155421227552351082224309758442")
	expP0          = mustSigned("-94201549194550492254356042504812")
	expP1          = mustSigned("28719021644029726153956944680412240")
	expP2          = new(uint256.Int).Lsh(mustSigned("4385272521454847904659076985693276"), 96)
	expQ0          = mustSigned("-2855989394907223263936484059900")
	expQ1          = mustSigned("50020603652535783019961831881945")
	expQ2          = mustSigned("-533845033583426703283633433725380")
	expQ3          = mustSigned("3604857256930695427073651918091429")
	expQ4          = mustSigned("-14423608567350463180887372962807573")
	expQ5          = mustSigned("26449188498355588339934803723976023")
	expScale       = mustSigned("3822833074963236453042738258902158003155416615667")
	lnP0           = mustSigned("3273285459638523848632254066296")
	lnP1           = mustSigned("24828157081833163892658089445524")
	lnP2           = mustSigned("43456485725739037958740375743393")
	lnP3           = mustSigned("-11111509109440967052023855526967")
	lnP4           = mustSigned("-45023709667254063763336534515857")
	lnP5           = mustSigned("-14706773417378608786704636184526")
	lnP6           = new(uint256.Int).Lsh(mustSigned("795164235651350426258249787498"), 96)
	lnQ0           = mustSigned("5573035233440673466300451813936")
	lnQ1           = mustSigned("71694874799317883764090561454958")
	lnQ2           = mustSigned("283447036172924575727196451306956")
	lnQ3           = mustSigned("401686690394027663651624208769553")
	lnQ4           = mustSigned("204048457590392012362485061816622")
	lnQ5           = mustSigned("31853899698501571402653359427138")
	lnQ6           = mustSigned("909429971244387300277376558375")
	lnScale        = mustSigned("1677202110996718588342820967067443963516166")
	lnLn2Scaled    = mustSigned("16597577552685614221487285958193947469193820559219878177908093499208371")
	lnOffsetScaled = mustSigned("600920179829731861736702779321621459595472258049074101567377883020018308")
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixedpointmath: bad constant " + s)
	}
	return v
}

// mustSigned parses a decimal constant into its int256 two's complement form.
func mustSigned(s string) *uint256.Int {
	return twos(mustBig(s))
}

// twos converts a value in the int256 range to two's complement.
func twos(x *big.Int) *uint256.Int {
	v, _ := uint256.FromBig(new(big.Int).Abs(x))
	if x.Sign() < 0 {
		v.Neg(v)
	}
	return v
}

// fromTwos converts a two's complement int256 back to a signed big.Int.
func fromTwos(x *uint256.Int) *big.Int {
	if x.Sign() >= 0 {
		return x.ToBig()
	}
	abs := new(uint256.Int).Neg(x).ToBig()
	return abs.Neg(abs)
}

// mulSar returns (a * b) >> 96 with int256 semantics.
func mulSar(a, b *uint256.Int) *uint256.Int {
	r := new(uint256.Int).Mul(a, b)
	return r.SRsh(r, 96)
}

// Exp returns e^x for a signed 18-decimal exponent.
func Exp(x *big.Int) (*big.Int, error) {
	if x == nil {
		return nil, ErrNilValue
	}
	if x.Cmp(ExpLowerBound) <= 0 {
		return new(big.Int), nil
	}
	if x.Cmp(ExpUpperBound) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpInput, x)
	}
	return exp(twos(x)).ToBig(), nil
}

func exp(in *uint256.Int) *uint256.Int {
	// Convert to a 2^96 basis: x * 2^96 / 1e18 = x * 2^78 / 5^18.
	x := new(uint256.Int).Lsh(in, 78)
	x.SDiv(x, expFive18)

	// Reduce the range of x to (-ln 2 / 2, ln 2 / 2) * 2^96 by factoring out k powers of two.
	k := new(uint256.Int).Lsh(x, 96)
	k.SDiv(k, expLn2X96)
	k.Add(k, expHalfX96)
	k.SRsh(k, 96)
	x.Sub(x, new(uint256.Int).Mul(k, expLn2X96))

	// (6, 7)-term rational approximation of e^x.
	y := new(uint256.Int).Add(x, expY0)
	y = mulSar(y, x)
	y.Add(y, expY1)
	p := new(uint256.Int).Add(y, x)
	p.Add(p, expP0)
	p = mulSar(p, y)
	p.Add(p, expP1)
	p.Mul(p, x)
	p.Add(p, expP2)

	q := new(uint256.Int).Add(x, expQ0)
	for _, c := range []*uint256.Int{expQ1, expQ2, expQ3, expQ4, expQ5} {
		q = mulSar(q, x)
		q.Add(q, c)
	}

	// p and q are both positive here, so the quotient is positive.
	r := new(uint256.Int).SDiv(p, q)

	// Multiply by the scale factor s * 5^18 * 2^96 and shift back into the 18-decimal basis,
	// applying the 2^k factor at the same time.
	shift := 195 - int64(k.Uint64())
	r.Mul(r, expScale)
	return r.Rsh(r, uint(shift))
}

// Ln returns the natural logarithm of a positive 18-decimal value.
func Ln(x *big.Int) (*big.Int, error) {
	if x == nil {
		return nil, ErrNilValue
	}
	if x.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLnInput, x)
	}
	if !inInt256(x) {
		return nil, fmt.Errorf("%w: %s does not fit in int256", ErrOverflow, x)
	}
	v, _ := uint256.FromBig(x)
	return fromTwos(ln(v)), nil
}

func ln(in *uint256.Int) *uint256.Int {
	// Reduce the range of x to [1, 2) * 2^96: ln(2^k * x) = k * ln(2) + ln(x).
	k := int64(in.BitLen()-1) - 96
	x := new(uint256.Int).Lsh(in, uint(159-k))
	x.Rsh(x, 159)

	// (8, 8)-term rational approximation of ln(x).
	p := new(uint256.Int).Add(x, lnP0)
	for _, c := range []*uint256.Int{lnP1, lnP2, lnP3, lnP4, lnP5} {
		p = mulSar(p, x)
		p.Add(p, c)
	}
	p.Mul(p, x)
	p.Sub(p, lnP6)

	q := new(uint256.Int).Add(x, lnQ0)
	for _, c := range []*uint256.Int{lnQ1, lnQ2, lnQ3, lnQ4, lnQ5, lnQ6} {
		q = mulSar(q, x)
		q.Add(q, c)
	}

	r := new(uint256.Int).SDiv(p, q)

	// Scale by 5^18 * 2^192 / 2^174 and add k * ln(2) plus the ln(2^96 / 1e18) offset.
	r.Mul(r, lnScale)
	r.Add(r, new(uint256.Int).Mul(lnLn2Scaled, twos(big.NewInt(k))))
	r.Add(r, lnOffsetScaled)
	return r.SRsh(r, 174)
}

// Pow returns x^y computed as exp(y * ln(x)).
// Pow(x, 0) is One and Pow(0, y) is 0 for any y > 0.
func Pow(x, y *uint256.Int) (*uint256.Int, error) {
	if x == nil || y == nil {
		return nil, ErrNilValue
	}
	if y.IsZero() {
		return One.Clone(), nil
	}
	if x.IsZero() {
		return new(uint256.Int), nil
	}

	yInt, err := ToInt256(y)
	if err != nil {
		return nil, err
	}
	lnx, err := Ln(x.ToBig())
	if err != nil {
		return nil, err
	}

	ylnx := new(big.Int).Mul(yInt, lnx)
	if !inInt256(ylnx) {
		return nil, fmt.Errorf("%w: y * ln(x) does not fit in int256", ErrOverflow)
	}
	ylnx.Quo(ylnx, oneBig)

	result, err := Exp(ylnx)
	if err != nil {
		return nil, err
	}
	return FromInt256(result)
}
