// Package phase2 implements the Groth16 circuit specialization over BN254:
// building the A, B, H and L query vectors from a phase-1 Lagrange
// conversion and an R1CS, applying per-contributor delta updates, verifying
// contribution chains, and exporting the final key material.
package phase2

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/transcript"
)

var magic = [4]byte{'P', 'O', 'T', '2'}

const formatVersion = 1

// Contribution is one contributor's two-point proof of knowledge of the
// delta factor they applied: the public witness d*G1 and d times the
// challenge base derived from the hash of the parameters they received.
type Contribution struct {
	PublicG1 bn254.G1Affine
	G2SX     bn254.G2Affine
}

// Params is the phase-2 parameter set for one circuit. The static queries
// (A, B1, B2, IC) never change after New; DeltaG1, DeltaG2, H and L are
// rewritten by every contribution.
type Params struct {
	Power         uint8
	NbWires       int
	NbPublic      int
	NbConstraints int
	RadixHash     [transcript.HashSize]byte

	AlphaG1 bn254.G1Affine
	BetaG1  bn254.G1Affine
	BetaG2  bn254.G2Affine
	GammaG2 bn254.G2Affine
	DeltaG1 bn254.G1Affine
	DeltaG2 bn254.G2Affine

	A  []bn254.G1Affine // A_i(tau)*G1 per wire
	B1 []bn254.G1Affine // B_i(tau)*G1 per wire
	B2 []bn254.G2Affine // B_i(tau)*G2 per wire
	IC []bn254.G1Affine // (beta*A_i + alpha*B_i + C_i)(tau)*G1, public wires
	H  []bn254.G1Affine // tau^i*(tau^n - 1)*G1 / delta
	L  []bn254.G1Affine // (beta*A_i + alpha*B_i + C_i)(tau)*G1 / delta, private wires

	Contributions []Contribution
}

const (
	szG1 = bn254.SizeOfG1AffineCompressed
	szG2 = bn254.SizeOfG2AffineCompressed
)

func writeG1(w io.Writer, p *bn254.G1Affine) error {
	b := p.Bytes()
	_, err := w.Write(b[:])
	return err
}

func writeG2(w io.Writer, p *bn254.G2Affine) error {
	b := p.Bytes()
	_, err := w.Write(b[:])
	return err
}

func readG1(r io.Reader, p *bn254.G1Affine, label string) error {
	var buf [szG1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("%w: truncated at %s: %v", powersoftau.ErrFormat, label, err)
	}
	if _, err := p.SetBytes(buf[:]); err != nil {
		return fmt.Errorf("%w: %s: %v", powersoftau.ErrInvalidPoint, label, err)
	}
	return nil
}

func readG2(r io.Reader, p *bn254.G2Affine, label string) error {
	var buf [szG2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("%w: truncated at %s: %v", powersoftau.ErrFormat, label, err)
	}
	if _, err := p.SetBytes(buf[:]); err != nil {
		return fmt.Errorf("%w: %s: %v", powersoftau.ErrInvalidPoint, label, err)
	}
	return nil
}

// WriteTo serializes the parameters: a fixed header, the single points, the
// query vectors, then the contribution chain.
func (p *Params) WriteTo(w io.Writer) error {
	var hdr [24]byte
	copy(hdr[:4], magic[:])
	binary.BigEndian.PutUint16(hdr[4:6], formatVersion)
	hdr[6] = p.Power
	binary.BigEndian.PutUint32(hdr[8:12], uint32(p.NbWires))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(p.NbPublic))
	binary.BigEndian.PutUint32(hdr[16:20], uint32(p.NbConstraints))
	binary.BigEndian.PutUint32(hdr[20:24], uint32(len(p.Contributions)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(p.RadixHash[:]); err != nil {
		return err
	}
	for _, pt := range []*bn254.G1Affine{&p.AlphaG1, &p.BetaG1, &p.DeltaG1} {
		if err := writeG1(w, pt); err != nil {
			return err
		}
	}
	for _, pt := range []*bn254.G2Affine{&p.BetaG2, &p.GammaG2, &p.DeltaG2} {
		if err := writeG2(w, pt); err != nil {
			return err
		}
	}
	for i := range p.A {
		if err := writeG1(w, &p.A[i]); err != nil {
			return err
		}
	}
	for i := range p.B1 {
		if err := writeG1(w, &p.B1[i]); err != nil {
			return err
		}
	}
	for i := range p.B2 {
		if err := writeG2(w, &p.B2[i]); err != nil {
			return err
		}
	}
	for i := range p.IC {
		if err := writeG1(w, &p.IC[i]); err != nil {
			return err
		}
	}
	for i := range p.H {
		if err := writeG1(w, &p.H[i]); err != nil {
			return err
		}
	}
	for i := range p.L {
		if err := writeG1(w, &p.L[i]); err != nil {
			return err
		}
	}
	for i := range p.Contributions {
		if err := writeG1(w, &p.Contributions[i].PublicG1); err != nil {
			return err
		}
		if err := writeG2(w, &p.Contributions[i].G2SX); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom deserializes parameters written by WriteTo. Every point passes
// the subgroup check on decode.
func (p *Params) ReadFrom(r io.Reader) error {
	var hdr [24]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("%w: reading phase 2 header: %v", powersoftau.ErrFormat, err)
	}
	if [4]byte(hdr[:4]) != magic {
		return fmt.Errorf("%w: bad phase 2 magic %q", powersoftau.ErrFormat, hdr[:4])
	}
	if v := binary.BigEndian.Uint16(hdr[4:6]); v != formatVersion {
		return fmt.Errorf("%w: unsupported phase 2 version %d", powersoftau.ErrFormat, v)
	}
	p.Power = hdr[6]
	p.NbWires = int(binary.BigEndian.Uint32(hdr[8:12]))
	p.NbPublic = int(binary.BigEndian.Uint32(hdr[12:16]))
	p.NbConstraints = int(binary.BigEndian.Uint32(hdr[16:20]))
	nbContribs := int(binary.BigEndian.Uint32(hdr[20:24]))
	if _, err := io.ReadFull(r, p.RadixHash[:]); err != nil {
		return fmt.Errorf("%w: reading radix hash: %v", powersoftau.ErrFormat, err)
	}
	if p.NbPublic > p.NbWires || p.NbWires == 0 {
		return fmt.Errorf("%w: inconsistent wire counts %d/%d",
			powersoftau.ErrFormat, p.NbPublic, p.NbWires)
	}

	if err := readG1(r, &p.AlphaG1, "alpha_g1"); err != nil {
		return err
	}
	if err := readG1(r, &p.BetaG1, "beta_g1"); err != nil {
		return err
	}
	if err := readG1(r, &p.DeltaG1, "delta_g1"); err != nil {
		return err
	}
	if err := readG2(r, &p.BetaG2, "beta_g2"); err != nil {
		return err
	}
	if err := readG2(r, &p.GammaG2, "gamma_g2"); err != nil {
		return err
	}
	if err := readG2(r, &p.DeltaG2, "delta_g2"); err != nil {
		return err
	}

	n := 1 << p.Power
	p.A = make([]bn254.G1Affine, p.NbWires)
	p.B1 = make([]bn254.G1Affine, p.NbWires)
	p.B2 = make([]bn254.G2Affine, p.NbWires)
	p.IC = make([]bn254.G1Affine, p.NbPublic)
	p.H = make([]bn254.G1Affine, n-1)
	p.L = make([]bn254.G1Affine, p.NbWires-p.NbPublic)
	for i := range p.A {
		if err := readG1(r, &p.A[i], fmt.Sprintf("a[%d]", i)); err != nil {
			return err
		}
	}
	for i := range p.B1 {
		if err := readG1(r, &p.B1[i], fmt.Sprintf("b1[%d]", i)); err != nil {
			return err
		}
	}
	for i := range p.B2 {
		if err := readG2(r, &p.B2[i], fmt.Sprintf("b2[%d]", i)); err != nil {
			return err
		}
	}
	for i := range p.IC {
		if err := readG1(r, &p.IC[i], fmt.Sprintf("ic[%d]", i)); err != nil {
			return err
		}
	}
	for i := range p.H {
		if err := readG1(r, &p.H[i], fmt.Sprintf("h[%d]", i)); err != nil {
			return err
		}
	}
	for i := range p.L {
		if err := readG1(r, &p.L[i], fmt.Sprintf("l[%d]", i)); err != nil {
			return err
		}
	}
	p.Contributions = make([]Contribution, nbContribs)
	for i := range p.Contributions {
		if err := readG1(r, &p.Contributions[i].PublicG1, fmt.Sprintf("contribution[%d]", i)); err != nil {
			return err
		}
		if err := readG2(r, &p.Contributions[i].G2SX, fmt.Sprintf("contribution[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes the parameters to a file, removing it on failure.
func (p *Params) WriteFile(path string) (err error) {
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
	if err = p.WriteTo(w); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return w.Flush()
}

// ReadFile loads parameters from a file.
func ReadFile(path string) (*Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	p := &Params{}
	if err := p.ReadFrom(bufio.NewReaderSize(f, 1<<20)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
