package curve

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"

	powersoftau "github.com/giuliop/powersoftau"
)

type kernelBLS12377 struct{}

func (kernelBLS12377) ID() ecc.ID { return ecc.BLS12_377 }
func (kernelBLS12377) Kind() powersoftau.CurveKind { return powersoftau.BLS12_377 }
func (kernelBLS12377) ScalarField() *big.Int { return fr.Modulus() }
func (kernelBLS12377) SizeG1() int { return bls12377.SizeOfG1AffineCompressed }
func (kernelBLS12377) SizeG2() int { return bls12377.SizeOfG2AffineCompressed }

func (kernelBLS12377) G1() []byte {
	_, _, g1, _ := bls12377.Generators()
	b := g1.Bytes()
	return b[:]
}

func (kernelBLS12377) G2() []byte {
	_, _, _, g2 := bls12377.Generators()
	b := g2.Bytes()
	return b[:]
}

func g1BLS12377(raw []byte) (bls12377.G1Affine, error) {
	var p bls12377.G1Affine
	if _, err := p.SetBytes(raw); err != nil {
		return p, fmt.Errorf("%w: %v", powersoftau.ErrInvalidPoint, err)
	}
	return p, nil
}

func g2BLS12377(raw []byte) (bls12377.G2Affine, error) {
	var p bls12377.G2Affine
	if _, err := p.SetBytes(raw); err != nil {
		return p, fmt.Errorf("%w: %v", powersoftau.ErrInvalidPoint, err)
	}
	return p, nil
}

func (kernelBLS12377) CheckG1(raw []byte) error {
	_, err := g1BLS12377(raw)
	return err
}

func (kernelBLS12377) CheckG2(raw []byte) error {
	_, err := g2BLS12377(raw)
	return err
}

func (kernelBLS12377) MulG1(praw []byte, s *big.Int) ([]byte, error) {
	p, err := g1BLS12377(praw)
	if err != nil {
		return nil, err
	}
	var q bls12377.G1Affine
	q.ScalarMultiplication(&p, s)
	b := q.Bytes()
	return b[:], nil
}

func (kernelBLS12377) MulG2(praw []byte, s *big.Int) ([]byte, error) {
	p, err := g2BLS12377(praw)
	if err != nil {
		return nil, err
	}
	var q bls12377.G2Affine
	q.ScalarMultiplication(&p, s)
	b := q.Bytes()
	return b[:], nil
}

func (kernelBLS12377) AddG1(praw, qraw []byte) ([]byte, error) {
	p, err := g1BLS12377(praw)
	if err != nil {
		return nil, err
	}
	q, err := g1BLS12377(qraw)
	if err != nil {
		return nil, err
	}
	var j bls12377.G1Jac
	j.FromAffine(&p)
	j.AddMixed(&q)
	var r bls12377.G1Affine
	r.FromJacobian(&j)
	b := r.Bytes()
	return b[:], nil
}

func (kernelBLS12377) AddG2(praw, qraw []byte) ([]byte, error) {
	p, err := g2BLS12377(praw)
	if err != nil {
		return nil, err
	}
	q, err := g2BLS12377(qraw)
	if err != nil {
		return nil, err
	}
	var j bls12377.G2Jac
	j.FromAffine(&p)
	j.AddMixed(&q)
	var r bls12377.G2Affine
	r.FromJacobian(&j)
	b := r.Bytes()
	return b[:], nil
}

func (kernelBLS12377) NegG1(praw []byte) ([]byte, error) {
	p, err := g1BLS12377(praw)
	if err != nil {
		return nil, err
	}
	p.Neg(&p)
	b := p.Bytes()
	return b[:], nil
}

func (kernelBLS12377) ScaleG1(buf []byte, n int, coeff, ratio *big.Int, workers int) error {
	sz := bls12377.SizeOfG1AffineCompressed
	if len(buf) < n*sz {
		return fmt.Errorf("%w: short g1 batch buffer", powersoftau.ErrFormat)
	}
	table := frPowersBLS12377(coeff, ratio, n)
	defer wipeFrBLS12377(table)
	return parallelRange(n, workers, func(start, end int) error {
		jacs := make([]bls12377.G1Jac, end-start)
		var p bls12377.G1Affine
		var pj bls12377.G1Jac
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
		affs := bls12377.BatchJacobianToAffineG1(jacs)
		for j := range affs {
			b := affs[j].Bytes()
			copy(buf[(start+j)*sz:], b[:])
		}
		return nil
	})
}

func (kernelBLS12377) ScaleG2(buf []byte, n int, coeff, ratio *big.Int, workers int) error {
	sz := bls12377.SizeOfG2AffineCompressed
	if len(buf) < n*sz {
		return fmt.Errorf("%w: short g2 batch buffer", powersoftau.ErrFormat)
	}
	table := frPowersBLS12377(coeff, ratio, n)
	defer wipeFrBLS12377(table)
	return parallelRange(n, workers, func(start, end int) error {
		jacs := make([]bls12377.G2Jac, end-start)
		var p bls12377.G2Affine
		var pj bls12377.G2Jac
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
		affs := bls12377.BatchJacobianToAffineG2(jacs)
		for j := range affs {
			b := affs[j].Bytes()
			copy(buf[(start+j)*sz:], b[:])
		}
		return nil
	})
}

func (kernelBLS12377) CombineShiftedG1(buf []byte, n int, coeffs []*big.Int, workers int) ([]byte, []byte, error) {
	sz := bls12377.SizeOfG1AffineCompressed
	if n < 2 || len(buf) < n*sz || len(coeffs) < n-1 {
		return nil, nil, fmt.Errorf("%w: bad g1 combination window", powersoftau.ErrFormat)
	}
	pts := make([]bls12377.G1Affine, n)
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
	var a, b bls12377.G1Affine
	if _, err := a.MultiExp(pts[:n-1], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g1 multiexp: %v", err)
	}
	if _, err := b.MultiExp(pts[1:], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g1 multiexp: %v", err)
	}
	ab, bb := a.Bytes(), b.Bytes()
	return ab[:], bb[:], nil
}

func (kernelBLS12377) CombineShiftedG2(buf []byte, n int, coeffs []*big.Int, workers int) ([]byte, []byte, error) {
	sz := bls12377.SizeOfG2AffineCompressed
	if n < 2 || len(buf) < n*sz || len(coeffs) < n-1 {
		return nil, nil, fmt.Errorf("%w: bad g2 combination window", powersoftau.ErrFormat)
	}
	pts := make([]bls12377.G2Affine, n)
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
	var a, b bls12377.G2Affine
	if _, err := a.MultiExp(pts[:n-1], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g2 multiexp: %v", err)
	}
	if _, err := b.MultiExp(pts[1:], scalars, cfg); err != nil {
		return nil, nil, fmt.Errorf("g2 multiexp: %v", err)
	}
	ab, bb := a.Bytes(), b.Bytes()
	return ab[:], bb[:], nil
}

func (kernelBLS12377) SameRatio(a0raw, a1raw, b0raw, b1raw []byte) (bool, error) {
	a0, err := g1BLS12377(a0raw)
	if err != nil {
		return false, err
	}
	a1, err := g1BLS12377(a1raw)
	if err != nil {
		return false, err
	}
	b0, err := g2BLS12377(b0raw)
	if err != nil {
		return false, err
	}
	b1, err := g2BLS12377(b1raw)
	if err != nil {
		return false, err
	}
	a0.Neg(&a0)
	ok, err := bls12377.PairingCheck(
		[]bls12377.G1Affine{a1, a0},
		[]bls12377.G2Affine{b0, b1},
	)
	if err != nil {
		return false, fmt.Errorf("pairing check: %v", err)
	}
	return ok, nil
}

func (kernelBLS12377) HashToG1(msg, dst []byte) ([]byte, error) {
	p, err := bls12377.HashToG1(msg, dst)
	if err != nil {
		return nil, fmt.Errorf("hash to g1: %v", err)
	}
	b := p.Bytes()
	return b[:], nil
}

func (kernelBLS12377) HashToG2(msg, dst []byte) ([]byte, error) {
	p, err := bls12377.HashToG2(msg, dst)
	if err != nil {
		return nil, fmt.Errorf("hash to g2: %v", err)
	}
	b := p.Bytes()
	return b[:], nil
}

func frPowersBLS12377(coeff, ratio *big.Int, n int) []fr.Element {
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

func wipeFrBLS12377(s []fr.Element) {
	for i := range s {
		s[i].SetZero()
	}
}
