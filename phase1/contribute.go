package phase1

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/pok"
	"github.com/giuliop/powersoftau/transcript"
)

// secrets holds one contributor's scalars. Wipe runs on every exit path of
// Contribute, success or failure.
type secrets struct {
	tau, alpha, beta *big.Int
}

func drawSecrets(ent *transcript.Entropy, r *big.Int, system powersoftau.ProvingSystem) (*secrets, error) {
	s := &secrets{}
	for _, role := range pok.RolesFor(system) {
		v, err := ent.Secret(uint8(role), r)
		if err != nil {
			return nil, err
		}
		switch role {
		case pok.Tau:
			s.tau = v
		case pok.Alpha:
			s.alpha = v
		case pok.Beta:
			s.beta = v
		}
	}
	return s, nil
}

func wipeInt(v *big.Int) {
	if v != nil {
		v.SetInt64(0)
	}
}

func (s *secrets) wipe() {
	wipeInt(s.tau)
	wipeInt(s.alpha)
	wipeInt(s.beta)
}

// scalarFor returns (coeff, ratio) such that point i of a window starting at
// global index start is multiplied by coeff*ratio^(i-start).
func (s *secrets) scalarFor(seq seqID, start int, r *big.Int) (coeff, ratio *big.Int) {
	tauPow := new(big.Int).Exp(s.tau, big.NewInt(int64(start)), r)
	switch seq {
	case seqTauG1, seqTauG2:
		return tauPow, s.tau
	case seqAlphaTauG1:
		return tauPow.Mul(tauPow, s.alpha).Mod(tauPow, r), s.tau
	case seqBetaTauG1:
		return tauPow.Mul(tauPow, s.beta).Mod(tauPow, r), s.tau
	case seqBetaG2:
		return new(big.Int).Set(s.beta), big.NewInt(1)
	default:
		return big.NewInt(1), big.NewInt(1)
	}
}

// Contribute folds one contributor's secrets into a challenge, producing a
// response: proof records bound to the challenge hash, then every sequence
// scaled elementwise by the appropriate secret powers, streamed through a
// batch-sized window.
func (c *Ceremony) Contribute(challengePath, responsePath string, ent *transcript.Entropy) (err error) {
	defer ent.Wipe()

	chal, chalHdr, err := openFile(challengePath, c.k, c.cfg, KindChallenge)
	if err != nil {
		return err
	}
	defer chal.Close()

	parent, err := HashFile(challengePath)
	if err != nil {
		return err
	}

	sec, err := drawSecrets(ent, c.k.ScalarField(), c.cfg.System)
	if err != nil {
		return err
	}
	defer sec.wipe()

	records := make([]pok.Record, 0, len(pok.RolesFor(c.cfg.System)))
	for _, role := range pok.RolesFor(c.cfg.System) {
		var s *big.Int
		switch role {
		case pok.Tau:
			s = sec.tau
		case pok.Alpha:
			s = sec.alpha
		case pok.Beta:
			s = sec.beta
		}
		rec, err := pok.Generate(c.k, parent[:], role, s)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	out, err := os.Create(responsePath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", responsePath, err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(responsePath)
		}
	}()

	respHdr := c.header(KindResponse, parent)
	w := bufio.NewWriterSize(out, 1<<20)
	hdr := respHdr.marshal()
	if _, err = w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err = w.Write(pok.MarshalBlock(c.k, records)); err != nil {
		return fmt.Errorf("writing proof block: %w", err)
	}

	for seq := seqTauG1; seq < numSeqs; seq++ {
		sp := chalHdr.spanOf(seq)
		if sp.count() == 0 {
			continue
		}
		sz := pointSize(c.k, seq)
		err = c.windows(sp.count(), func(off, n int) error {
			buf := make([]byte, n*sz)
			if _, err := chal.ReadAt(buf, chalHdr.seqOffset(c.k, seq)+int64(off*sz)); err != nil {
				return fmt.Errorf("reading %v window: %w", seq, err)
			}
			// ratio aliases the long-lived secret wiped by sec.wipe; only
			// the per-window coefficient is scrubbed here.
			coeff, ratio := sec.scalarFor(seq, sp.lo+off, c.k.ScalarField())
			defer wipeInt(coeff)
			if seq.inG2() {
				if err := c.k.ScaleG2(buf, n, coeff, ratio, c.workers); err != nil {
					return fmt.Errorf("%v: %w", seq, err)
				}
			} else {
				if err := c.k.ScaleG1(buf, n, coeff, ratio, c.workers); err != nil {
					return fmt.Errorf("%v: %w", seq, err)
				}
			}
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("writing %v window: %w", seq, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		c.log.Debug().Stringer("sequence", seq).Int("points", sp.count()).Msg("transformed")
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", responsePath, err)
	}
	c.log.Info().Str("response", responsePath).Msg("contribution written")
	return nil
}

// Beacon contributes with secrets derived deterministically from a public
// beacon string after an iterated-hash delay.
func (c *Ceremony) Beacon(challengePath, responsePath, beaconHex string, iterations uint64) error {
	raw, err := hex.DecodeString(beaconHex)
	if err != nil {
		return fmt.Errorf("%w: beacon hash is not hex: %v", powersoftau.ErrConfig, err)
	}
	ent, err := transcript.BeaconEntropy(raw, iterations)
	if err != nil {
		return err
	}
	c.log.Info().Uint64("iterations", iterations).Msg("beacon delay applied")
	return c.Contribute(challengePath, responsePath, ent)
}
