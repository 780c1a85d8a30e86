package curve

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	bw6761 "github.com/consensys/gnark-crypto/ecc/bw6-761"
	fr "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"

	powersoftau "github.com/giuliop/powersoftau"
)

type kernelBW6761 struct{}

func (kernelBW6761) ID() ecc.ID { return ecc.BW6_761 }
func (kernelBW6761) Kind() powersoftau.CurveKind { return powersoftau.BW6_761 }
func (kernelBW6761) ScalarField() *big.Int { return fr.Modulus() }
func (kernelBW6761) SizeG1() int { return bw6761.SizeOfG1AffineCompressed }
func (kernelBW6761) SizeG2() int { return bw6761.SizeOfG2AffineCompressed }

func (kernelBW6761) G1() []byte {
	_, _, g1, _ := bw6761.Generators()
	b := g1.Bytes()
	return b[:]
}

func (kernelBW6761) G2() []byte {
	_, _, _, g2 := bw6761.Generators()
	b := g2.Bytes()
	return b[:]
}

func g1BW6761(raw []byte) (bw6761.G1Affine, error) {
	var p bw6761.G1Affine
	if _, err := p.SetBytes(raw); err != nil {
		return p, fmt.Errorf("%w: %v", powersoftau.ErrInvalidPoint, err)
	}
	return p, nil
}

func g2BW6761(raw []byte) (bw6761.G2Affine, error) {
	var p bw6761.G2Affine
	if _, err := p.SetBytes(raw); err != nil {
		return p, fmt.Errorf("%w: %v", powersoftau.ErrInvalidPoint, err)
	}
	return p, nil
}

func (kernelBW6761) CheckG1(raw []byte) error {
	_, err := g1BW6761(raw)
	return err
}

func (kernelBW6761) CheckG2(raw []byte) error {
	_, err := g2BW6761(raw)
	return err
}

func (kernelBW6761) MulG1(praw []byte, s *big.Int) ([]byte, error) {
	p, err := g1BW6761(praw)
	if err != nil {
		return nil, err
	}
	var q bw6761.G1Affine
	q.ScalarMultiplication(&p, s)
	b := q.Bytes()
	return b[:], nil
}

func (kernelBW6761) MulG2(praw []byte, s *big.Int) ([]byte, error) {
	p, err := g2BW6761(praw)
	if err != nil {
		return nil, err
	}
	var q bw6761.G2Affine
	q.ScalarMultiplication(&p, s)
	b := q.Bytes()
	return b[:], nil
}

func (kernelBW6761) AddG1(praw, qraw []byte) ([]byte, error) {
	p, err := g1BW6761(praw)
	if err != nil {
		return nil, err
	}
	q, err := g1BW6761(qraw)
	if err != nil {
		return nil, err
	}
	var j bw6761.G1Jac
	j.FromAffine(&p)
	j.AddMixed(&q)
	var r bw6761.G1Affine
	r.FromJacobian(&j)
	b := r.Bytes()
	return b[:], nil
}

func (kernelBW6761) AddG2(praw, qraw []byte) ([]byte, error) {
	p, err := g2BW6761(praw)
	if err != nil {
		return nil, err
	}
	q, err := g2BW6761(qraw)
	if err != nil {
		return nil, err
	}
	var j bw6761.G2Jac
	j.FromAffine(&p)
	j.AddMixed(&q)
	var r bw6761.G2Affine
	r.FromJacobian(&j)
	b := r.Bytes()
	return b[:], nil
}

func (kernelBW6761) NegG1(praw []byte) ([]byte, error) {
	p, err := g1BW6761(praw)
	if err != nil {
		return nil, err
	}
	p.Neg(&p)
	b := p.Bytes()
	return b[:], nil
}

func (kernelBW6761) ScaleG1(buf []byte, n int, coeff, ratio *big.Int, workers int) error {
	sz := bw6761.SizeOfG1AffineCompressed
	if len(buf) < n*sz {
		return fmt.Errorf("%w: short g1 batch buffer", powersoftau.ErrFormat)
	}
	table := frPowersBW6761(coeff, ratio, n)
	defer wipeFrBW6761(table)
	return parallelRange(n, workers, func(start, end int) error {
		jacs := make([]bw6761.G1Jac, end-start)
		var p bw6761.G1Affine
		var pj bw6761.G1Jac
		var s big.Int
		for i := start; i < end; i++ {
			if _, err := p.SetBytes(buf[i*sz : (i+1)*sz]); err != nil {
				return fmt.Errorf("%w: g1 element %d: %v", powersoftau.ErrInvalidPoint, i, err)
			}
			pj.FromAffine(&p)
			table[i].BigInt(&s)
			jacs[i-start].ScalarMultiplication(&pj, &s)
		}
		s.SetInt64(0)
		affs := bw6761.BatchJacobianToAffineG1(jacs)
		for j := range affs {
			b := affs[j].Bytes()
			copy(buf[(start+j)*sz:], b[:])
		}
		return nil
	})
}

func (kernelBW6761) ScaleG2(buf []byte, n int, coeff, ratio *big.Int, workers int) error {
	sz := bw6761.SizeOfG2AffineCompressed
	if len(buf) < n*sz {
		return fmt.Errorf("%w: short g2 batch buffer", powersoftau.ErrFormat)
	}
	table := frPowersBW6761(coeff, ratio, n)
	defer wipeFrBW6761(table)
	return parallelRange(n, workers, func(start, end int) error {
		jacs := make([]bw6761.G2Jac, end-start)
		var p bw6761.G2Affine
		var pj bw6761.G2Jac
		var s big.Int
		for i := start; i < end; i++ {
			if _, err := p.SetBytes(buf[i*sz : (i+1)*sz]); err != nil {
				return fmt.Errorf("%w: g2 element %d: %v", powersoftau.ErrInvalidPoint, i, err)
			}
			pj.FromAffine(&p)
			table[i].BigInt(&s)
			jacs[i-start].ScalarMultiplication(&pj, &s)
		}
		s.SetInt64(0)
		affs := bw6761.BatchJacobianToAffineG2(jacs)
		for j := range affs {
			b := affs[j].Bytes()
			copy(buf[(start+j)*sz:], b[:])
		}
		return nil
	})
}

func (kernelBW6761) CombineShiftedG1(buf []byte, n int, coeffs []*big.Int, workers int) ([]byte, []byte, error) {
	sz := bw6761.SizeOfG1AffineCompressed
	if n < 2 || len(buf) < n*sz || len(coeffs) < n-1 {
		return nil, nil, fmt.Errorf("%w: bad g1 combination window", powersoftau.ErrFormat)
	}
	pts := make([]bw6761.G1Affine, n)
	for i := 0; i < n; i++ {
		if _, err := pts[i].SetBytes(buf[i*sz : (i+1)*sz]); err != nil {
			return nil, nil, fmt.Errorf("%w: g1 element %d: %v", powersoftau.ErrInvalidPoint, i, err)
		}
	}
	scalars := make([]fr.Element, n-1)
	for i := range scalars {
		scalars[i].SetBigInt(coeffs[i])
	}
	cfg := ecc.MultiExpConfig{NbTasks: workers}
	var a, b bw6761.G1Affine
	if _, err := a.MultiExp(pts[:n-1], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g1 multiexp: %v", err)
	}
	if _, err := b.MultiExp(pts[1:], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g1 multiexp: %v", err)
	}
	ab, bb := a.Bytes(), b.Bytes()
	return ab[:], bb[:], nil
}

func (kernelBW6761) CombineShiftedG2(buf []byte, n int, coeffs []*big.Int, workers int) ([]byte, []byte, error) {
	sz := bw6761.SizeOfG2AffineCompressed
	if n < 2 || len(buf) < n*sz || len(coeffs) < n-1 {
		return nil, nil, fmt.Errorf("%w: bad g2 combination window", powersoftau.ErrFormat)
	}
	pts := make([]bw6761.G2Affine, n)
	for i := 0; i < n; i++ {
		if _, err := pts[i].SetBytes(buf[i*sz : (i+1)*sz]); err != nil {
			return nil, nil, fmt.Errorf("%w: g2 element %d: %v", powersoftau.ErrInvalidPoint, i, err)
		}
	}
	scalars := make([]fr.Element, n-1)
	for i := range scalars {
		scalars[i].SetBigInt(coeffs[i])
	}
	cfg := ecc.MultiExpConfig{NbTasks: workers}
	var a, b bw6761.G2Affine
	if _, err := a.MultiExp(pts[:n-1], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g2 multiexp: %v", err)
	}
	if _, err := b.MultiExp(pts[1:], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g2 multiexp: %v", err)
	}
	ab, bb := a.Bytes(), b.Bytes()
	return ab[:], bb[:], nil
}

func (kernelBW6761) SameRatio(a0raw, a1raw, b0raw, b1raw []byte) (bool, error) {
	a0, err := g1BW6761(a0raw)
	if err != nil {
		return false, err
	}
	a1, err := g1BW6761(a1raw)
	if err != nil {
		return false, err
	}
	b0, err := g2BW6761(b0raw)
	if err != nil {
		return false, err
	}
	b1, err := g2BW6761(b1raw)
	if err != nil {
		return false, err
	}
	a0.Neg(&a0)
	ok, err := bw6761.PairingCheck(
		[]bw6761.G1Affine{a1, a0},
		[]bw6761.G2Affine{b0, b1},
	)
	if err != nil {
		return false, fmt.Errorf("pairing check: %v", err)
	}
	return ok, nil
}

func (kernelBW6761) HashToG1(msg, dst []byte) ([]byte, error) {
	p, err := bw6761.HashToG1(msg, dst)
	if err != nil {
		return nil, fmt.Errorf("hash to g1: %v", err)
	}
	b := p.Bytes()
	return b[:], nil
}

func (kernelBW6761) HashToG2(msg, dst []byte) ([]byte, error) {
	p, err := bw6761.HashToG2(msg, dst)
	if err != nil {
		return nil, fmt.Errorf("hash to g2: %v", err)
	}
	b := p.Bytes()
	return b[:], nil
}

func frPowersBW6761(coeff, ratio *big.Int, n int) []fr.Element {
	table := make([]fr.Element, n)
	var q fr.Element
	q.SetBigInt(ratio)
	table[0].SetBigInt(coeff)
	for i := 1; i < n; i++ {
		table[i].Mul(&table[i-1], &q)
	}
	q.SetZero()
	return table
}

func wipeFrBW6761(s []fr.Element) {
	for i := range s {
		s[i].SetZero()
	}
}
