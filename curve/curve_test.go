package curve

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	powersoftau "github.com/giuliop/powersoftau"
)

var testedKinds = []powersoftau.CurveKind{
	powersoftau.BLS12_381,
	powersoftau.BLS12_377,
	powersoftau.BW6_761,
	powersoftau.BN254,
}

func TestKernelGenerators(t *testing.T) {
	for _, kind := range testedKinds {
		k, err := For(kind)
		require.NoError(t, err, kind.String())
		require.Equal(t, kind, k.Kind())
		require.Len(t, k.G1(), k.SizeG1())
		require.Len(t, k.G2(), k.SizeG2())
		require.NoError(t, k.CheckG1(k.G1()))
		require.NoError(t, k.CheckG2(k.G2()))
	}
}

func TestCheckRejectsGarbage(t *testing.T) {
	for _, kind := range testedKinds {
		k, err := For(kind)
		require.NoError(t, err)
		garbage := make([]byte, k.SizeG1())
		for i := range garbage {
			garbage[i] = 0x5a
		}
		err = k.CheckG1(garbage)
		require.Error(t, err, kind.String())
		require.True(t, errors.Is(err, powersoftau.ErrInvalidPoint))
	}
}

func TestMulMatchesAdd(t *testing.T) {
	for _, kind := range testedKinds {
		k, err := For(kind)
		require.NoError(t, err)
		double, err := k.MulG1(k.G1(), big.NewInt(2))
		require.NoError(t, err)
		sum, err := k.AddG1(k.G1(), k.G1())
		require.NoError(t, err)
		require.Equal(t, double, sum, kind.String())
	}
}

func TestScaleG1BuildsPowers(t *testing.T) {
	k, err := For(powersoftau.BN254)
	require.NoError(t, err)
	tau := big.NewInt(7919)
	const n = 9

	buf := make([]byte, 0, n*k.SizeG1())
	for i := 0; i < n; i++ {
		buf = append(buf, k.G1()...)
	}
	require.NoError(t, k.ScaleG1(buf, n, big.NewInt(1), tau, 3))

	pow := big.NewInt(1)
	for i := 0; i < n; i++ {
		want, err := k.MulG1(k.G1(), pow)
		require.NoError(t, err)
		require.Equal(t, want, buf[i*k.SizeG1():(i+1)*k.SizeG1()], "power %d", i)
		pow = new(big.Int).Mul(pow, tau)
		pow.Mod(pow, k.ScalarField())
	}
}

func TestScaleDeterministicAcrossWorkers(t *testing.T) {
	k, err := For(powersoftau.BLS12_381)
	require.NoError(t, err)
	const n = 17
	mk := func(workers int) []byte {
		buf := make([]byte, 0, n*k.SizeG1())
		for i := 0; i < n; i++ {
			buf = append(buf, k.G1()...)
		}
		require.NoError(t, k.ScaleG1(buf, n, big.NewInt(3), big.NewInt(65537), workers))
		return buf
	}
	require.Equal(t, mk(1), mk(4))
}

func TestSameRatioOverPowers(t *testing.T) {
	k, err := For(powersoftau.BLS12_381)
	require.NoError(t, err)
	tau := big.NewInt(1234577)
	const n = 8

	buf := make([]byte, 0, n*k.SizeG1())
	for i := 0; i < n; i++ {
		buf = append(buf, k.G1()...)
	}
	require.NoError(t, k.ScaleG1(buf, n, big.NewInt(1), tau, 2))

	coeffs := make([]*big.Int, n-1)
	for i := range coeffs {
		coeffs[i] = big.NewInt(int64(100 + i))
	}
	a, b, err := k.CombineShiftedG1(buf, n, coeffs, 2)
	require.NoError(t, err)

	tauG2, err := k.MulG2(k.G2(), tau)
	require.NoError(t, err)
	ok, err := k.SameRatio(a, b, k.G2(), tauG2)
	require.NoError(t, err)
	require.True(t, ok, "shifted combination must have ratio tau")

	wrongG2, err := k.MulG2(k.G2(), big.NewInt(99))
	require.NoError(t, err)
	ok, err = k.SameRatio(a, b, k.G2(), wrongG2)
	require.NoError(t, err)
	require.False(t, ok, "wrong ratio must fail")
}

func TestCombineShiftedG2(t *testing.T) {
	k, err := For(powersoftau.BN254)
	require.NoError(t, err)
	tau := big.NewInt(31337)
	const n = 6

	buf := make([]byte, 0, n*k.SizeG2())
	for i := 0; i < n; i++ {
		buf = append(buf, k.G2()...)
	}
	require.NoError(t, k.ScaleG2(buf, n, big.NewInt(1), tau, 2))

	coeffs := make([]*big.Int, n-1)
	for i := range coeffs {
		coeffs[i] = big.NewInt(int64(7 + 3*i))
	}
	a2, b2, err := k.CombineShiftedG2(buf, n, coeffs, 2)
	require.NoError(t, err)

	tauG1, err := k.MulG1(k.G1(), tau)
	require.NoError(t, err)
	ok, err := k.SameRatio(k.G1(), tauG1, a2, b2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHashToCurveDeterministic(t *testing.T) {
	for _, kind := range testedKinds {
		k, err := For(kind)
		require.NoError(t, err)
		p1, err := k.HashToG1([]byte("transcript"), []byte("dst"))
		require.NoError(t, err)
		p2, err := k.HashToG1([]byte("transcript"), []byte("dst"))
		require.NoError(t, err)
		require.Equal(t, p1, p2)
		require.NoError(t, k.CheckG1(p1))

		q, err := k.HashToG2([]byte("transcript"), []byte("dst"))
		require.NoError(t, err)
		require.NoError(t, k.CheckG2(q))
	}
}
