package phase1

import (
	"bufio"
	"fmt"
	"io"
	"os"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/curve"
	"github.com/giuliop/powersoftau/lagrange"
	"github.com/giuliop/powersoftau/transcript"
)

// PrepareRadix converts a finalized full-mode BN254 Groth16 challenge into
// the radix file phase 2 consumes: the single alpha/beta points, the
// coefficient-form tau_g1 powers (kept for the H query), and the four
// sequences in Lagrange basis over the 2^power domain.
//
// The conversion is a whole-domain inverse FFT, so unlike the streaming
// transforms it holds all four sequences and their Lagrange forms in memory
// at once.
func (c *Ceremony) PrepareRadix(challengePath, radixPath string) (err error) {
	if c.cfg.Curve != powersoftau.BN254 {
		return fmt.Errorf("%w: phase 2 radix conversion is BN254 only", powersoftau.ErrConfig)
	}
	if c.cfg.System != powersoftau.Groth16 || c.cfg.Mode != powersoftau.Full {
		return fmt.Errorf("%w: radix conversion needs a full-mode groth16 transcript",
			powersoftau.ErrConfig)
	}
	f, h, err := openAccumulator(challengePath, c.k, c.cfg)
	if err != nil {
		return err
	}
	defer f.Close()
	parent, err := HashFile(challengePath)
	if err != nil {
		return err
	}

	n := 1 << c.cfg.Power
	domain := fft.NewDomain(uint64(n))

	tauG1, err := c.readG1Seq(f, h, seqTauG1)
	if err != nil {
		return err
	}
	tauG2, err := c.readG2Seq(f, h, seqTauG2)
	if err != nil {
		return err
	}
	alphaTauG1, err := c.readG1Seq(f, h, seqAlphaTauG1)
	if err != nil {
		return err
	}
	betaTauG1, err := c.readG1Seq(f, h, seqBetaTauG1)
	if err != nil {
		return err
	}
	betaG2Raw, err := readPoint(f, h, c.k, seqBetaG2, 0)
	if err != nil {
		return err
	}

	lagTauG1 := lagrange.InverseG1(tauG1[:n], domain)
	lagTauG2 := lagrange.InverseG2(tauG2, domain)
	lagAlphaG1 := lagrange.InverseG1(alphaTauG1, domain)
	lagBetaG1 := lagrange.InverseG1(betaTauG1, domain)

	out, err := os.Create(radixPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", radixPath, err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(radixPath)
		}
	}()

	rh := h
	rh.Kind = KindRadix
	rh.ParentHash = parent
	w := bufio.NewWriterSize(out, 1<<20)
	hdr := rh.marshal()
	if _, err = w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	writeG1 := func(pts []bn254.G1Affine) error {
		for i := range pts {
			b := pts[i].Bytes()
			if _, err := w.Write(b[:]); err != nil {
				return fmt.Errorf("writing radix body: %w", err)
			}
		}
		return nil
	}
	writeG2 := func(pts []bn254.G2Affine) error {
		for i := range pts {
			b := pts[i].Bytes()
			if _, err := w.Write(b[:]); err != nil {
				return fmt.Errorf("writing radix body: %w", err)
			}
		}
		return nil
	}
	if err = writeG1(alphaTauG1[:1]); err != nil {
		return err
	}
	if err = writeG1(betaTauG1[:1]); err != nil {
		return err
	}
	if _, err = w.Write(betaG2Raw); err != nil {
		return fmt.Errorf("writing radix body: %w", err)
	}
	if err = writeG1(tauG1); err != nil {
		return err
	}
	if err = writeG1(lagTauG1); err != nil {
		return err
	}
	if err = writeG2(lagTauG2); err != nil {
		return err
	}
	if err = writeG1(lagAlphaG1); err != nil {
		return err
	}
	if err = writeG1(lagBetaG1); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", radixPath, err)
	}
	c.log.Info().Str("radix", radixPath).Int("domain", n).Msg("lagrange conversion complete")
	return nil
}

// Radix is the in-memory form of a radix file: the single alpha and beta
// points, the coefficient-form tau powers, and the Lagrange-basis sequences.
type Radix struct {
	AlphaG1    bn254.G1Affine
	BetaG1     bn254.G1Affine
	BetaG2     bn254.G2Affine
	TauG1      []bn254.G1Affine // coefficient form, 2*2^power - 1 points
	LagTauG1   []bn254.G1Affine
	LagTauG2   []bn254.G2Affine
	LagAlphaG1 []bn254.G1Affine
	LagBetaG1  []bn254.G1Affine
	Hash       [transcript.HashSize]byte // transcript hash of the file
}

// ReadRadix loads a radix file produced by PrepareRadix.
func ReadRadix(path string, power int) (*Radix, error) {
	cfg := powersoftau.Config{
		Curve:     powersoftau.BN254,
		System:    powersoftau.Groth16,
		Power:     power,
		BatchSize: powersoftau.DefaultBatchSize,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k, err := curve.For(cfg.Curve)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("%w: reading header of %s: %v", powersoftau.ErrFormat, path, err)
	}
	h, err := parseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := h.matches(cfg, KindRadix); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sum, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	rx := &Radix{Hash: sum}
	n := 1 << power
	szG1, szG2 := k.SizeG1(), k.SizeG2()

	br := bufio.NewReaderSize(f, 1<<20)
	nextG1 := func(label string) (bn254.G1Affine, error) {
		var p bn254.G1Affine
		buf := make([]byte, szG1)
		if _, err := io.ReadFull(br, buf); err != nil {
			return p, fmt.Errorf("%w: %s truncated at %s: %v", powersoftau.ErrFormat, path, label, err)
		}
		if _, err := p.SetBytes(buf); err != nil {
			return p, fmt.Errorf("%w: %s: %v", powersoftau.ErrInvalidPoint, label, err)
		}
		return p, nil
	}
	nextG2 := func(label string) (bn254.G2Affine, error) {
		var p bn254.G2Affine
		buf := make([]byte, szG2)
		if _, err := io.ReadFull(br, buf); err != nil {
			return p, fmt.Errorf("%w: %s truncated at %s: %v", powersoftau.ErrFormat, path, label, err)
		}
		if _, err := p.SetBytes(buf); err != nil {
			return p, fmt.Errorf("%w: %s: %v", powersoftau.ErrInvalidPoint, label, err)
		}
		return p, nil
	}
	readG1s := func(label string, count int) ([]bn254.G1Affine, error) {
		pts := make([]bn254.G1Affine, count)
		for i := range pts {
			p, err := nextG1(fmt.Sprintf("%s[%d]", label, i))
			if err != nil {
				return nil, err
			}
			pts[i] = p
		}
		return pts, nil
	}

	if rx.AlphaG1, err = nextG1("alpha_g1"); err != nil {
		return nil, err
	}
	if rx.BetaG1, err = nextG1("beta_g1"); err != nil {
		return nil, err
	}
	if rx.BetaG2, err = nextG2("beta_g2"); err != nil {
		return nil, err
	}
	if rx.TauG1, err = readG1s("tau_g1", 2*n-1); err != nil {
		return nil, err
	}
	if rx.LagTauG1, err = readG1s("lag_tau_g1", n); err != nil {
		return nil, err
	}
	rx.LagTauG2 = make([]bn254.G2Affine, n)
	for i := range rx.LagTauG2 {
		if rx.LagTauG2[i], err = nextG2(fmt.Sprintf("lag_tau_g2[%d]", i)); err != nil {
			return nil, err
		}
	}
	if rx.LagAlphaG1, err = readG1s("lag_alpha_tau_g1", n); err != nil {
		return nil, err
	}
	if rx.LagBetaG1, err = readG1s("lag_beta_tau_g1", n); err != nil {
		return nil, err
	}
	return rx, nil
}

// readG1Seq loads a whole BN254 G1 sequence into memory.
func (c *Ceremony) readG1Seq(f *os.File, h Header, seq seqID) ([]bn254.G1Affine, error) {
	sp := h.spanOf(seq)
	sz := c.k.SizeG1()
	buf := make([]byte, sp.count()*sz)
	if _, err := f.ReadAt(buf, h.seqOffset(c.k, seq)); err != nil {
		return nil, fmt.Errorf("reading %v: %w", seq, err)
	}
	pts := make([]bn254.G1Affine, sp.count())
	for i := range pts {
		if _, err := pts[i].SetBytes(buf[i*sz : (i+1)*sz]); err != nil {
			return nil, fmt.Errorf("%w: %v[%d]: %v", powersoftau.ErrInvalidPoint, seq, i, err)
		}
	}
	return pts, nil
}

// readG2Seq loads a whole BN254 G2 sequence into memory.
func (c *Ceremony) readG2Seq(f *os.File, h Header, seq seqID) ([]bn254.G2Affine, error) {
	sp := h.spanOf(seq)
	sz := c.k.SizeG2()
	buf := make([]byte, sp.count()*sz)
	if _, err := f.ReadAt(buf, h.seqOffset(c.k, seq)); err != nil {
		return nil, fmt.Errorf("reading %v: %w", seq, err)
	}
	pts := make([]bn254.G2Affine, sp.count())
	for i := range pts {
		if _, err := pts[i].SetBytes(buf[i*sz : (i+1)*sz]); err != nil {
			return nil, fmt.Errorf("%w: %v[%d]: %v", powersoftau.ErrInvalidPoint, seq, i, err)
		}
	}
	return pts, nil
}
