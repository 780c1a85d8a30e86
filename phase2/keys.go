package phase2

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/rs/zerolog"

	powersoftau "github.com/giuliop/powersoftau"
)

// ExportKeys writes the proving and verifying key material of a finalized
// parameter set as flat binary files: fixed counts, then compressed points
// in declaration order. Neither file carries the parameter file's magic,
// header or contribution chain.
//
// Proving key: alpha_g1, beta_g1, delta_g1, beta_g2, delta_g2, then the A,
// B1, B2, H, L vectors. Verifying key: alpha_g1, beta_g2, gamma_g2,
// delta_g2, then the IC vector.
func ExportKeys(paramsPath, pkPath, vkPath string, log zerolog.Logger) error {
	p, err := ReadFile(paramsPath)
	if err != nil {
		return err
	}
	if len(p.Contributions) == 0 {
		return fmt.Errorf("%w: refusing to export keys with ceremony-start delta",
			powersoftau.ErrConfig)
	}
	if err := writeProvingKey(p, pkPath); err != nil {
		return err
	}
	if err := writeVerifyingKey(p, vkPath); err != nil {
		os.Remove(pkPath)
		return err
	}
	log.Info().Str("pk", pkPath).Str("vk", vkPath).
		Int("contributions", len(p.Contributions)).Msg("keys exported")
	return nil
}

func writeProvingKey(p *Params, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(path)
		}
	}()
	w := bufio.NewWriterSize(f, 1<<20)

	var counts [12]byte
	binary.BigEndian.PutUint32(counts[0:4], uint32(p.NbWires))
	binary.BigEndian.PutUint32(counts[4:8], uint32(p.NbPublic))
	binary.BigEndian.PutUint32(counts[8:12], uint32(len(p.H)))
	if _, err = w.Write(counts[:]); err != nil {
		return err
	}
	for _, pt := range []*bn254.G1Affine{&p.AlphaG1, &p.BetaG1, &p.DeltaG1} {
		if err = writeG1(w, pt); err != nil {
			return err
		}
	}
	for _, pt := range []*bn254.G2Affine{&p.BetaG2, &p.DeltaG2} {
		if err = writeG2(w, pt); err != nil {
			return err
		}
	}
	for _, vec := range [][]bn254.G1Affine{p.A, p.B1} {
		for i := range vec {
			if err = writeG1(w, &vec[i]); err != nil {
				return err
			}
		}
	}
	for i := range p.B2 {
		if err = writeG2(w, &p.B2[i]); err != nil {
			return err
		}
	}
	for _, vec := range [][]bn254.G1Affine{p.H, p.L} {
		for i := range vec {
			if err = writeG1(w, &vec[i]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func writeVerifyingKey(p *Params, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(path)
		}
	}()
	w := bufio.NewWriterSize(f, 1<<16)

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(p.IC)))
	if _, err = w.Write(count[:]); err != nil {
		return err
	}
	if err = writeG1(w, &p.AlphaG1); err != nil {
		return err
	}
	for _, pt := range []*bn254.G2Affine{&p.BetaG2, &p.GammaG2, &p.DeltaG2} {
		if err = writeG2(w, pt); err != nil {
			return err
		}
	}
	for i := range p.IC {
		if err = writeG1(w, &p.IC[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}
