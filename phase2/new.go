package phase2

import (
	"fmt"
	"math/big"
	"os"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	cs "github.com/consensys/gnark/constraint/bn254"
	"github.com/rs/zerolog"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/phase1"
)

// loadR1CS reads a gnark BN254 R1CS written with WriteTo.
func loadR1CS(path string) (*cs.R1CS, error) {
	ccs := groth16.NewCS(ecc.BN254)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := ccs.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("%w: reading constraint system %s: %v",
			powersoftau.ErrFormat, path, err)
	}
	r1cs, ok := ccs.(*cs.R1CS)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a BN254 R1CS", powersoftau.ErrFormat, path)
	}
	return r1cs, nil
}

// New builds the ceremony-start parameters (delta = 1) for a circuit from
// its R1CS and the phase-1 radix file. Query construction walks every
// constraint once, accumulating each term into its wire's bucket:
//
//	A_i  += u_{j,i} * L_j(tau) * G1
//	B_i  += v_{j,i} * L_j(tau) * G_{1,2}
//	ext_i += u_{j,i}*L_j(beta*tau)*G1 + v_{j,i}*L_j(alpha*tau)*G1 + w_{j,i}*L_j(tau)*G1
//
// with ext split into IC (public wires, gamma stays 1) and L (private
// wires, scaled by 1/delta from now on). H[i] is tau^i*(tau^n-1)*G1,
// assembled from the coefficient-form powers as tau_g1[n+i] - tau_g1[i].
func New(ccsPath, radixPath string, power int, log zerolog.Logger) (*Params, error) {
	r1cs, err := loadR1CS(ccsPath)
	if err != nil {
		return nil, err
	}
	radix, err := phase1.ReadRadix(radixPath, power)
	if err != nil {
		return nil, err
	}

	n := 1 << power
	nbConstraints := r1cs.GetNbConstraints()
	if nbConstraints > n {
		return nil, fmt.Errorf("%w: circuit has %d constraints, radix domain is %d",
			powersoftau.ErrConfig, nbConstraints, n)
	}
	nbPublic := r1cs.GetNbPublicVariables()
	nbWires := r1cs.NbInternalVariables + nbPublic + r1cs.GetNbSecretVariables()

	aAcc := make([]bn254.G1Jac, nbWires)
	b1Acc := make([]bn254.G1Jac, nbWires)
	b2Acc := make([]bn254.G2Jac, nbWires)
	extAcc := make([]bn254.G1Jac, nbWires)

	var bi big.Int
	accG1 := func(dst *bn254.G1Jac, base *bn254.G1Affine, coeff *fr.Element) {
		if coeff.IsZero() {
			return
		}
		var p bn254.G1Jac
		p.FromAffine(base)
		p.ScalarMultiplication(&p, coeff.BigInt(&bi))
		dst.AddAssign(&p)
	}
	accG2 := func(dst *bn254.G2Jac, base *bn254.G2Affine, coeff *fr.Element) {
		if coeff.IsZero() {
			return
		}
		var p bn254.G2Jac
		p.FromAffine(base)
		p.ScalarMultiplication(&p, coeff.BigInt(&bi))
		dst.AddAssign(&p)
	}

	j := 0
	it := r1cs.GetR1CIterator()
	for c := it.Next(); c != nil; c = it.Next() {
		for _, t := range c.L {
			coeff := r1cs.Coefficients[t.CoeffID()]
			wid := t.WireID()
			accG1(&aAcc[wid], &radix.LagTauG1[j], &coeff)
			accG1(&extAcc[wid], &radix.LagBetaG1[j], &coeff)
		}
		for _, t := range c.R {
			coeff := r1cs.Coefficients[t.CoeffID()]
			wid := t.WireID()
			accG1(&b1Acc[wid], &radix.LagTauG1[j], &coeff)
			accG2(&b2Acc[wid], &radix.LagTauG2[j], &coeff)
			accG1(&extAcc[wid], &radix.LagAlphaG1[j], &coeff)
		}
		for _, t := range c.O {
			coeff := r1cs.Coefficients[t.CoeffID()]
			wid := t.WireID()
			accG1(&extAcc[wid], &radix.LagTauG1[j], &coeff)
		}
		j++
	}

	_, _, g1Gen, g2Gen := bn254.Generators()
	p := &Params{
		Power:         uint8(power),
		NbWires:       nbWires,
		NbPublic:      nbPublic,
		NbConstraints: nbConstraints,
		RadixHash:     radix.Hash,
		AlphaG1:       radix.AlphaG1,
		BetaG1:        radix.BetaG1,
		BetaG2:        radix.BetaG2,
		GammaG2:       g2Gen,
		DeltaG1:       g1Gen,
		DeltaG2:       g2Gen,
	}
	p.A = bn254.BatchJacobianToAffineG1(aAcc)
	p.B1 = bn254.BatchJacobianToAffineG1(b1Acc)
	p.B2 = make([]bn254.G2Affine, nbWires)
	for i := range b2Acc {
		p.B2[i].FromJacobian(&b2Acc[i])
	}
	ext := bn254.BatchJacobianToAffineG1(extAcc)
	p.IC = ext[:nbPublic]
	p.L = ext[nbPublic:]

	p.H = make([]bn254.G1Affine, n-1)
	for i := 0; i < n-1; i++ {
		var hi bn254.G1Jac
		var lo bn254.G1Jac
		hi.FromAffine(&radix.TauG1[n+i])
		lo.FromAffine(&radix.TauG1[i])
		lo.Neg(&lo)
		hi.AddAssign(&lo)
		p.H[i].FromJacobian(&hi)
	}

	log.Info().Int("wires", nbWires).Int("constraints", nbConstraints).
		Int("domain", n).Msg("phase 2 parameters built")
	return p, nil
}
