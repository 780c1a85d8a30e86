package phase2

import (
	"fmt"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/rs/zerolog"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/transcript"
)

// sameRatio reports whether e(a1, b0) == e(a0, b1).
func sameRatio(a0, a1 bn254.G1Affine, b0, b1 bn254.G2Affine) (bool, error) {
	a0.Neg(&a0)
	return bn254.PairingCheck(
		[]bn254.G1Affine{a1, a0},
		[]bn254.G2Affine{b0, b1},
	)
}

// Verify checks that next extends prev by exactly one well-formed
// contribution: the static queries are untouched, the new delta is proven
// in a pairing-checked proof of knowledge bound to prev's hash, the delta
// pair stays consistent across groups, and the H and L queries were scaled
// by the inverse of exactly that delta, checked with one random linear
// combination per query.
func Verify(prevPath, nextPath string, log zerolog.Logger) error {
	prev, err := ReadFile(prevPath)
	if err != nil {
		return err
	}
	next, err := ReadFile(nextPath)
	if err != nil {
		return err
	}

	if err := staticEqual(prev, next); err != nil {
		return err
	}
	if len(next.Contributions) != len(prev.Contributions)+1 {
		return fmt.Errorf("%w: expected one new contribution, got %d",
			powersoftau.ErrPhase2, len(next.Contributions)-len(prev.Contributions))
	}
	for i := range prev.Contributions {
		if prev.Contributions[i] != next.Contributions[i] {
			return fmt.Errorf("%w: contribution %d rewritten", powersoftau.ErrPhase2, i)
		}
	}

	parent, err := hashParams(prevPath)
	if err != nil {
		return err
	}
	base, err := deltaBase(parent[:])
	if err != nil {
		return fmt.Errorf("deriving delta base: %v", err)
	}
	rec := next.Contributions[len(next.Contributions)-1]

	_, _, g1Gen, g2Gen := bn254.Generators()

	// The proof scalar moves the public witness and the delta points alike.
	ok, err := sameRatio(g1Gen, rec.PublicG1, base, rec.G2SX)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: delta proof of knowledge", powersoftau.ErrPhase2)
	}
	ok, err = sameRatio(prev.DeltaG1, next.DeltaG1, base, rec.G2SX)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: delta_g1 not bound to proven scalar", powersoftau.ErrPhase2)
	}
	ok, err = sameRatio(g1Gen, next.DeltaG1, g2Gen, next.DeltaG2)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: delta_g1/delta_g2 disagree", powersoftau.ErrPhase2)
	}

	// H and L scale by delta's inverse: the random combinations must pair
	// back to equality against the old and new delta_g2.
	nextHash, err := hashParams(nextPath)
	if err != nil {
		return err
	}
	seed := transcript.ChallengeSeed(transcript.DomainRlc, deltaRole, nextHash[:], nil)
	rng := transcript.NewRng(seed)
	for _, q := range []struct {
		name     string
		old, new []bn254.G1Affine
	}{
		{"h", prev.H, next.H},
		{"l", prev.L, next.L},
	} {
		if len(q.old) == 0 {
			continue
		}
		coeffs := make([]fr.Element, len(q.old))
		r := fr.Modulus()
		for i := range coeffs {
			coeffs[i].SetBigInt(rng.Scalar(r))
		}
		cfg := ecc.MultiExpConfig{NbTasks: powersoftau.Workers()}
		var oldComb, newComb bn254.G1Affine
		if _, err := oldComb.MultiExp(q.old, coeffs, cfg); err != nil {
			return fmt.Errorf("%s multiexp: %v", q.name, err)
		}
		if _, err := newComb.MultiExp(q.new, coeffs, cfg); err != nil {
			return fmt.Errorf("%s multiexp: %v", q.name, err)
		}
		ok, err := sameRatio(oldComb, newComb, next.DeltaG2, prev.DeltaG2)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s query not scaled by 1/delta", powersoftau.ErrPhase2, q.name)
		}
	}
	log.Info().Int("contributions", len(next.Contributions)).Msg("phase 2 contribution verified")
	return nil
}

// staticEqual checks the fields a contribution must never touch.
func staticEqual(prev, next *Params) error {
	if prev.Power != next.Power || prev.NbWires != next.NbWires ||
		prev.NbPublic != next.NbPublic || prev.NbConstraints != next.NbConstraints {
		return fmt.Errorf("%w: circuit shape changed", powersoftau.ErrPhase2)
	}
	if prev.RadixHash != next.RadixHash {
		return fmt.Errorf("%w: radix provenance changed", powersoftau.ErrPhase2)
	}
	if !prev.AlphaG1.Equal(&next.AlphaG1) || !prev.BetaG1.Equal(&next.BetaG1) ||
		!prev.BetaG2.Equal(&next.BetaG2) || !prev.GammaG2.Equal(&next.GammaG2) {
		return fmt.Errorf("%w: alpha/beta/gamma changed", powersoftau.ErrPhase2)
	}
	for i := range prev.A {
		if !prev.A[i].Equal(&next.A[i]) {
			return fmt.Errorf("%w: a query [%d] changed", powersoftau.ErrPhase2, i)
		}
	}
	for i := range prev.B1 {
		if !prev.B1[i].Equal(&next.B1[i]) {
			return fmt.Errorf("%w: b1 query [%d] changed", powersoftau.ErrPhase2, i)
		}
	}
	for i := range prev.B2 {
		if !prev.B2[i].Equal(&next.B2[i]) {
			return fmt.Errorf("%w: b2 query [%d] changed", powersoftau.ErrPhase2, i)
		}
	}
	for i := range prev.IC {
		if !prev.IC[i].Equal(&next.IC[i]) {
			return fmt.Errorf("%w: ic query [%d] changed", powersoftau.ErrPhase2, i)
		}
	}
	return nil
}

// VerifyChain re-verifies a whole contribution chain file by file.
func VerifyChain(paths []string, log zerolog.Logger) error {
	if len(paths) < 2 {
		return fmt.Errorf("%w: need at least two parameter files", powersoftau.ErrConfig)
	}
	for i := 0; i+1 < len(paths); i++ {
		if err := Verify(paths[i], paths[i+1], log); err != nil {
			return err
		}
	}
	return nil
}
