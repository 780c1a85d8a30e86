package phase1

import (
	"os"
)

// PowersG1 returns the first count compressed tau_g1 points of a transcript,
// for audits against externally published SRS material.
func (c *Ceremony) PowersG1(path string, count int) ([][]byte, error) {
	f, h, err := openAccumulator(path, c.k, c.cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.readRange(f, h, seqTauG1, count)
}

// PowersG2 returns the first count compressed tau_g2 points of a transcript.
func (c *Ceremony) PowersG2(path string, count int) ([][]byte, error) {
	f, h, err := openAccumulator(path, c.k, c.cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.readRange(f, h, seqTauG2, count)
}

func (c *Ceremony) readRange(f *os.File, h Header, seq seqID, count int) ([][]byte, error) {
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		p, err := readPoint(f, h, c.k, seq, i)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
