package phase2

import (
	"fmt"
	"math/big"
	"os"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/transcript"
)

// deltaRole is the role index delta occupies in transcript derivations.
const deltaRole uint8 = 0

var dstDeltaG2 = []byte("ceremony-phase2-pok-v1:g2")

// deltaBase recomputes the G2 challenge base for a contribution to the
// parameter file with the given hash.
func deltaBase(parent []byte) (bn254.G2Affine, error) {
	seed := transcript.ChallengeSeed(transcript.DomainPok, deltaRole, parent, nil)
	return bn254.HashToG2(seed[:], dstDeltaG2)
}

// hashParams is the transcript hash of a parameter file.
func hashParams(path string) ([transcript.HashSize]byte, error) {
	var zero [transcript.HashSize]byte
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return transcript.HashReader(f)
}

// Contribute draws a non-zero delta factor, multiplies it into the delta
// points, scales the H and L queries by its inverse, and appends the
// two-point proof of knowledge bound to the incoming file's hash.
func Contribute(inPath, outPath string, ent *transcript.Entropy, log zerolog.Logger) (err error) {
	defer ent.Wipe()

	p, err := ReadFile(inPath)
	if err != nil {
		return err
	}
	parent, err := hashParams(inPath)
	if err != nil {
		return err
	}

	r := fr.Modulus()
	d, err := ent.Secret(deltaRole, r)
	if err != nil {
		return err
	}
	defer d.SetInt64(0)
	dInv := new(big.Int).ModInverse(d, r)
	if dInv == nil {
		return fmt.Errorf("%w: delta is not invertible", powersoftau.ErrZeroScalar)
	}
	defer dInv.SetInt64(0)

	p.DeltaG1.ScalarMultiplication(&p.DeltaG1, d)
	p.DeltaG2.ScalarMultiplication(&p.DeltaG2, d)
	scaleG1Vec(p.H, dInv)
	scaleG1Vec(p.L, dInv)

	base, err := deltaBase(parent[:])
	if err != nil {
		return fmt.Errorf("deriving delta base: %v", err)
	}
	var contrib Contribution
	_, _, g1Gen, _ := bn254.Generators()
	contrib.PublicG1.ScalarMultiplication(&g1Gen, d)
	contrib.G2SX.ScalarMultiplication(&base, d)
	p.Contributions = append(p.Contributions, contrib)

	if err = p.WriteFile(outPath); err != nil {
		return err
	}
	log.Info().Str("params", outPath).Int("contributions", len(p.Contributions)).
		Msg("phase 2 contribution written")
	return nil
}

// scaleG1Vec multiplies every point by s, with batched affine conversion.
func scaleG1Vec(pts []bn254.G1Affine, s *big.Int) {
	if len(pts) == 0 {
		return
	}
	jacs := make([]bn254.G1Jac, len(pts))
	for i := range pts {
		jacs[i].FromAffine(&pts[i])
		jacs[i].ScalarMultiplication(&jacs[i], s)
	}
	copy(pts, bn254.BatchJacobianToAffineG1(jacs))
}
