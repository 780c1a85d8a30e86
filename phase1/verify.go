package phase1

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"os"

	"golang.org/x/sync/errgroup"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/pok"
	"github.com/giuliop/powersoftau/transcript"
)

// VerifyTransform checks a response against the challenge it claims to
// extend and, on success, promotes its body to the next challenge file:
//
//  1. the response's parent-hash field must equal the challenge hash;
//  2. every response point must decode into the prime-order subgroup;
//  3. the generators must sit untouched at position zero;
//  4. each proof of knowledge must verify against the challenge hash and
//     bind its scalar to the ratio between old and new end points;
//  5. the power sequences must pass the random-linear-combination pairing
//     checks, with coefficients derived from the response hash.
func (c *Ceremony) VerifyTransform(challengePath, responsePath, newChallengePath string) (err error) {
	chal, chalHdr, err := openFile(challengePath, c.k, c.cfg, KindChallenge)
	if err != nil {
		return err
	}
	defer chal.Close()
	resp, respHdr, err := openFile(responsePath, c.k, c.cfg, KindResponse)
	if err != nil {
		return err
	}
	defer resp.Close()

	chalHash, err := HashFile(challengePath)
	if err != nil {
		return err
	}
	if respHdr.ParentHash != chalHash {
		return fmt.Errorf("%w: response %s does not extend challenge %s",
			powersoftau.ErrHashMismatch, responsePath, challengePath)
	}

	respHash, err := HashFile(responsePath)
	if err != nil {
		return err
	}

	if err := c.checkPoints(resp, respHdr); err != nil {
		return err
	}
	if err := c.checkGenerators(resp, respHdr); err != nil {
		return err
	}

	records, err := readPokBlock(resp, respHdr, c.k)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := pok.Verify(c.k, chalHash[:], rec); err != nil {
			return err
		}
		if err := c.checkBinding(chal, chalHdr, resp, respHdr, chalHash, rec); err != nil {
			return err
		}
	}

	seed := transcript.ChallengeSeed(transcript.DomainRlc, 0, respHash[:], nil)
	if err := c.checkRatios(resp, respHdr, seed); err != nil {
		return err
	}

	if err := c.emitChallenge(resp, respHdr, respHash, newChallengePath); err != nil {
		return err
	}
	c.log.Info().Str("new_challenge", newChallengePath).Msg("response verified and promoted")
	return nil
}

// VerifyRatios runs the ratio invariants alone over a full-mode transcript,
// the final check after the beacon round. It accepts a challenge or a
// response file.
func (c *Ceremony) VerifyRatios(path string) error {
	f, h, err := openAccumulator(path, c.k, c.cfg)
	if err != nil {
		return err
	}
	defer f.Close()
	sum, err := HashFile(path)
	if err != nil {
		return err
	}
	if err := c.checkPoints(f, h); err != nil {
		return err
	}
	if err := c.checkGenerators(f, h); err != nil {
		return err
	}
	seed := transcript.ChallengeSeed(transcript.DomainRlc, 0, sum[:], nil)
	if err := c.checkRatios(f, h, seed); err != nil {
		return err
	}
	c.log.Info().Str("file", path).Msg("ratio invariants hold")
	return nil
}

// checkPoints streams every sequence through the window and validates each
// compressed point: encoding, curve equation, subgroup membership.
func (c *Ceremony) checkPoints(f *os.File, h Header) error {
	for seq := seqTauG1; seq < numSeqs; seq++ {
		sp := h.spanOf(seq)
		if sp.count() == 0 {
			continue
		}
		sz := pointSize(c.k, seq)
		check := c.k.CheckG1
		if seq.inG2() {
			check = c.k.CheckG2
		}
		err := c.windows(sp.count(), func(off, n int) error {
			buf := make([]byte, n*sz)
			if _, err := f.ReadAt(buf, h.seqOffset(c.k, seq)+int64(off*sz)); err != nil {
				return fmt.Errorf("reading %v window: %w", seq, err)
			}
			var g errgroup.Group
			g.SetLimit(c.workers)
			for i := 0; i < n; i++ {
				i := i
				g.Go(func() error {
					if err := check(buf[i*sz : (i+1)*sz]); err != nil {
						return fmt.Errorf("%v[%d]: %w", seq, sp.lo+off+i, err)
					}
					return nil
				})
			}
			return g.Wait()
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// checkGenerators enforces I1: positions zero of tau_g1 and tau_g2 hold the
// fixed generators, never scaled by any contributor.
func (c *Ceremony) checkGenerators(f *os.File, h Header) error {
	if !h.spanOf(seqTauG1).contains(0) {
		return nil
	}
	p, err := readPoint(f, h, c.k, seqTauG1, 0)
	if err != nil {
		return err
	}
	if !bytes.Equal(p, c.k.G1()) {
		return fmt.Errorf("%w: tau_g1[0] is not the generator", powersoftau.ErrRatioInvalid)
	}
	q, err := readPoint(f, h, c.k, seqTauG2, 0)
	if err != nil {
		return err
	}
	if !bytes.Equal(q, c.k.G2()) {
		return fmt.Errorf("%w: tau_g2[0] is not the generator", powersoftau.ErrRatioInvalid)
	}
	return nil
}

// checkBinding ties a proof-of-knowledge scalar to the transformation the
// response actually applied, by comparing old and new accumulator end points
// under the proof's challenge bases. Only the file covering the relevant
// indices performs it; for later chunks the ratio work is the combiner's.
func (c *Ceremony) checkBinding(chal *os.File, chalHdr Header, resp *os.File, respHdr Header,
	chalHash [transcript.HashSize]byte, rec pok.Record) error {

	g1s, g2s, err := pok.Bases(c.k, chalHash[:], rec.Role)
	if err != nil {
		return err
	}
	ratio := func(seq seqID, i int, g2side bool) error {
		old, err := readPoint(chal, chalHdr, c.k, seq, i)
		if err != nil {
			return err
		}
		cur, err := readPoint(resp, respHdr, c.k, seq, i)
		if err != nil {
			return err
		}
		var ok bool
		if g2side {
			ok, err = c.k.SameRatio(g1s, rec.G1SX, old, cur)
		} else {
			ok, err = c.k.SameRatio(old, cur, g2s, rec.G2SX)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: role %v not bound to %v[%d] transform",
				powersoftau.ErrPokInvalid, rec.Role, seq, i)
		}
		return nil
	}

	switch rec.Role {
	case pok.Tau:
		if respHdr.spanOf(seqTauG1).contains(1) {
			if err := ratio(seqTauG1, 1, false); err != nil {
				return err
			}
			if err := ratio(seqTauG2, 1, true); err != nil {
				return err
			}
		}
	case pok.Alpha:
		if respHdr.spanOf(seqAlphaTauG1).contains(0) {
			if err := ratio(seqAlphaTauG1, 0, false); err != nil {
				return err
			}
		}
	case pok.Beta:
		if respHdr.spanOf(seqBetaTauG1).contains(0) {
			if err := ratio(seqBetaTauG1, 0, false); err != nil {
				return err
			}
			if err := ratio(seqBetaG2, 0, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// rlcG1 aggregates the shifted random combination (sum r_i P_i, sum r_i
// P_{i+1}) over a G1 sequence, window by window. The coefficient stream is
// consumed in index order, so the result is independent of batching.
func (c *Ceremony) rlcG1(f *os.File, h Header, seq seqID, seed [transcript.HashSize]byte) (a, b []byte, err error) {
	sp := h.spanOf(seq)
	sz := c.k.SizeG1()
	rng := transcript.NewRng(seed)
	r := c.k.ScalarField()
	err = c.windows(sp.count()-1, func(off, n int) error {
		buf := make([]byte, (n+1)*sz)
		if _, err := f.ReadAt(buf, h.seqOffset(c.k, seq)+int64(off*sz)); err != nil {
			return fmt.Errorf("reading %v window: %w", seq, err)
		}
		coeffs := make([]*big.Int, n)
		for i := range coeffs {
			coeffs[i] = rng.Scalar(r)
		}
		wa, wb, err := c.k.CombineShiftedG1(buf, n+1, coeffs, c.workers)
		if err != nil {
			return fmt.Errorf("%v: %w", seq, err)
		}
		if a == nil {
			a, b = wa, wb
			return nil
		}
		if a, err = c.k.AddG1(a, wa); err != nil {
			return err
		}
		b, err = c.k.AddG1(b, wb)
		return err
	})
	return a, b, err
}

func (c *Ceremony) rlcG2(f *os.File, h Header, seq seqID, seed [transcript.HashSize]byte) (a, b []byte, err error) {
	sp := h.spanOf(seq)
	sz := c.k.SizeG2()
	rng := transcript.NewRng(seed)
	r := c.k.ScalarField()
	err = c.windows(sp.count()-1, func(off, n int) error {
		buf := make([]byte, (n+1)*sz)
		if _, err := f.ReadAt(buf, h.seqOffset(c.k, seq)+int64(off*sz)); err != nil {
			return fmt.Errorf("reading %v window: %w", seq, err)
		}
		coeffs := make([]*big.Int, n)
		for i := range coeffs {
			coeffs[i] = rng.Scalar(r)
		}
		wa, wb, err := c.k.CombineShiftedG2(buf, n+1, coeffs, c.workers)
		if err != nil {
			return fmt.Errorf("%v: %w", seq, err)
		}
		if a == nil {
			a, b = wa, wb
			return nil
		}
		if a, err = c.k.AddG2(a, wa); err != nil {
			return err
		}
		b, err = c.k.AddG2(b, wb)
		return err
	})
	return a, b, err
}

// checkRatios runs the random-linear-combination form of the ratio
// invariants over whatever index range the file covers. Each sequence
// reuses the same coefficient stream, re-derived from the same seed.
//
// The reference ratio is the file's own leading tau pair; in full mode that
// is (G2, tau*G2) for the G1 checks and (G1, tau*G1) for the G2 check. A
// tail chunk carrying fewer than two tau_g2 points has no local reference
// pair; its interior consistency is established by the combiner's full pass.
func (c *Ceremony) checkRatios(f *os.File, h Header, seed [transcript.HashSize]byte) error {
	tau1 := h.spanOf(seqTauG1)
	tau2 := h.spanOf(seqTauG2)
	if tau1.count() < 2 {
		return nil
	}
	g1lo, err := readPoint(f, h, c.k, seqTauG1, tau1.lo)
	if err != nil {
		return err
	}
	g1hi, err := readPoint(f, h, c.k, seqTauG1, tau1.lo+1)
	if err != nil {
		return err
	}
	if tau2.count() >= 2 {
		g2lo, err := readPoint(f, h, c.k, seqTauG2, tau2.lo)
		if err != nil {
			return err
		}
		g2hi, err := readPoint(f, h, c.k, seqTauG2, tau2.lo+1)
		if err != nil {
			return err
		}

		a, b, err := c.rlcG1(f, h, seqTauG1, seed)
		if err != nil {
			return err
		}
		ok, err := c.k.SameRatio(a, b, g2lo, g2hi)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: tau_g1 power sequence", powersoftau.ErrRatioInvalid)
		}

		a2, b2, err := c.rlcG2(f, h, seqTauG2, seed)
		if err != nil {
			return err
		}
		ok, err = c.k.SameRatio(g1lo, g1hi, a2, b2)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: tau_g2 power sequence", powersoftau.ErrRatioInvalid)
		}

		for _, seq := range []seqID{seqAlphaTauG1, seqBetaTauG1} {
			if h.spanOf(seq).count() < 2 {
				continue
			}
			a, b, err := c.rlcG1(f, h, seq, seed)
			if err != nil {
				return err
			}
			ok, err := c.k.SameRatio(a, b, g2lo, g2hi)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %v power sequence", powersoftau.ErrRatioInvalid, seq)
			}
		}
	} else {
		c.log.Debug().Uint32("chunk", h.ChunkIndex).
			Msg("no local tau_g2 pair; interior ratio check deferred to combine")
	}

	// I4: the single beta_g2 element against beta_tau_g1[0].
	if h.spanOf(seqBetaTauG1).contains(0) && h.spanOf(seqBetaG2).contains(0) {
		bt0, err := readPoint(f, h, c.k, seqBetaTauG1, 0)
		if err != nil {
			return err
		}
		bg2, err := readPoint(f, h, c.k, seqBetaG2, 0)
		if err != nil {
			return err
		}
		ok, err := c.k.SameRatio(c.k.G1(), bt0, c.k.G2(), bg2)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: beta_g2 cross-group check", powersoftau.ErrRatioInvalid)
		}
	}
	return nil
}

// emitChallenge writes the next challenge: the response body under a fresh
// header whose parent hash is the response hash.
func (c *Ceremony) emitChallenge(resp *os.File, respHdr Header,
	respHash [transcript.HashSize]byte, path string) (err error) {

	h := respHdr
	h.Kind = KindChallenge
	h.ParentHash = respHash

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(path)
		}
	}()

	hdr := h.marshal()
	if _, err = out.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bodyOff := respHdr.seqOffset(c.k, seqTauG1)
	bodyLen := respHdr.fileSize(c.k) - bodyOff
	if _, err = io.Copy(out, io.NewSectionReader(resp, bodyOff, bodyLen)); err != nil {
		return fmt.Errorf("copying body: %w", err)
	}
	return nil
}
