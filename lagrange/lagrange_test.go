package lagrange

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/stretchr/testify/require"
)

// tauPowers builds [tau^i]G1 for i in [0, n).
func tauPowers(tau *big.Int, n int) []bn254.G1Affine {
	_, _, g1, _ := bn254.Generators()
	out := make([]bn254.G1Affine, n)
	pow := big.NewInt(1)
	r := fr.Modulus()
	for i := range out {
		out[i].ScalarMultiplication(&g1, pow)
		pow = new(big.Int).Mul(pow, tau)
		pow.Mod(pow, r)
	}
	return out
}

func TestForwardInverseRoundTrip(t *testing.T) {
	const n = 8
	domain := fft.NewDomain(n)
	pts := tauPowers(big.NewInt(98765), n)

	lag := InverseG1(pts, domain)
	back := ForwardG1(lag, domain)
	for i := range pts {
		require.True(t, pts[i].Equal(&back[i]), "index %d", i)
	}
}

// TestLagrangeEvaluation checks the defining property of the conversion:
// for a polynomial given by its evaluations e_j at the domain points,
// sum_j e_j * [L_j(tau)]G1 = [p(tau)]G1. With p(x) = x the evaluations are
// the domain points themselves and p(tau) = tau.
func TestLagrangeEvaluation(t *testing.T) {
	const n = 8
	domain := fft.NewDomain(n)
	tau := big.NewInt(1299721)
	lag := InverseG1(tauPowers(tau, n), domain)

	evals := make([]fr.Element, n)
	var omega fr.Element
	omega.SetOne()
	for j := range evals {
		evals[j].Set(&omega)
		omega.Mul(&omega, &domain.Generator)
	}
	var got bn254.G1Affine
	_, err := got.MultiExp(lag, evals, ecc.MultiExpConfig{})
	require.NoError(t, err)

	_, _, g1, _ := bn254.Generators()
	var want bn254.G1Affine
	want.ScalarMultiplication(&g1, tau)
	require.True(t, want.Equal(&got))
}

func TestInverseG2MatchesG1(t *testing.T) {
	const n = 4
	domain := fft.NewDomain(n)
	tau := big.NewInt(31337)

	lagG1 := InverseG1(tauPowers(tau, n), domain)

	_, _, _, g2 := bn254.Generators()
	ptsG2 := make([]bn254.G2Affine, n)
	pow := big.NewInt(1)
	r := fr.Modulus()
	for i := range ptsG2 {
		ptsG2[i].ScalarMultiplication(&g2, pow)
		pow = new(big.Int).Mul(pow, tau)
		pow.Mod(pow, r)
	}
	lagG2 := InverseG2(ptsG2, domain)

	// the same scalars L_j(tau) underlie both groups: pairing each G1
	// output with the G2 generator must match pairing G1 generator with
	// the G2 output
	_, _, g1, g2gen := bn254.Generators()
	for j := 0; j < n; j++ {
		var neg bn254.G1Affine
		neg.Neg(&g1)
		ok, err := bn254.PairingCheck(
			[]bn254.G1Affine{lagG1[j], neg},
			[]bn254.G2Affine{g2gen, lagG2[j]},
		)
		require.NoError(t, err)
		require.True(t, ok, "lagrange point %d", j)
	}
}
