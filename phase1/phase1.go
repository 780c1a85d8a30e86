package phase1

import (
	"bufio"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/curve"
)

// Ceremony runs phase-1 operations for one parameter set. It holds no
// mutable state: every operation is a pure function of its input files and
// explicit parameters.
type Ceremony struct {
	cfg     powersoftau.Config
	k       curve.Kernel
	workers int
	log     zerolog.Logger
}

// New validates the configuration and resolves the curve kernel.
func New(cfg powersoftau.Config, log zerolog.Logger) (*Ceremony, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = powersoftau.DefaultBatchSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k, err := curve.For(cfg.Curve)
	if err != nil {
		return nil, err
	}
	return &Ceremony{cfg: cfg, k: k, workers: powersoftau.Workers(), log: log}, nil
}

// Config returns the ceremony parameters.
func (c *Ceremony) Config() powersoftau.Config { return c.cfg }

func (c *Ceremony) header(kind Kind, parent [64]byte) Header {
	h := Header{
		Kind:   kind,
		Curve:  c.cfg.Curve,
		System: c.cfg.System,
		Power:  uint8(c.cfg.Power),
		Mode:   c.cfg.Mode,
	}
	if c.cfg.Mode == powersoftau.Chunked {
		h.ChunkIndex = uint32(c.cfg.ChunkIndex)
		h.ChunkSize = uint32(c.cfg.ChunkSize)
	}
	h.ParentHash = parent
	return h
}

// Initialize writes the identity accumulator: every sequence filled with its
// group generator, parent hash all zero.
func (c *Ceremony) Initialize(path string) (err error) {
	h := c.header(KindChallenge, [64]byte{})
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
	hdr := h.marshal()
	if _, err = w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for seq := seqTauG1; seq < numSeqs; seq++ {
		gen := c.k.G1()
		if seq.inG2() {
			gen = c.k.G2()
		}
		for i := 0; i < h.spanOf(seq).count(); i++ {
			if _, err = w.Write(gen); err != nil {
				return fmt.Errorf("writing %v: %w", seq, err)
			}
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	c.log.Info().Str("challenge", path).Int("power", c.cfg.Power).
		Stringer("curve", c.cfg.Curve).Msg("wrote identity accumulator")
	return nil
}

// windows slides a batch-sized window over count points, calling f with the
// window's offset within the covered range and its length.
func (c *Ceremony) windows(count int, f func(off, n int) error) error {
	for off := 0; off < count; off += c.cfg.BatchSize {
		n := c.cfg.BatchSize
		if off+n > count {
			n = count - off
		}
		if err := f(off, n); err != nil {
			return err
		}
	}
	return nil
}
