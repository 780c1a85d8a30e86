// Package curve exposes the capability set the ceremony engines need from a
// pairing-friendly curve: generators, compressed point codecs with mandatory
// subgroup checks, batched fixed-ratio scalar multiplication, multi-scalar
// combination for random-linear-combination verification, same-ratio pairing
// checks, and hash-to-curve for challenge bases.
//
// A Kernel is resolved once per engine entry point and passed by value; the
// engines never dispatch per point. Points cross the interface in their
// compressed wire encoding, which is also the on-disk encoding, so the
// engines stay byte-oriented and curve-agnostic.
package curve

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"golang.org/x/sync/errgroup"

	powersoftau "github.com/giuliop/powersoftau"
)

// Kernel is the capability set over one curve. Batch methods take a worker
// count and must produce bytes independent of it.
type Kernel interface {
	ID() ecc.ID
	Kind() powersoftau.CurveKind

	// ScalarField returns the modulus r of the scalar field Fr.
	ScalarField() *big.Int

	// SizeG1 and SizeG2 are the compressed encoding sizes in bytes.
	SizeG1() int
	SizeG2() int

	// G1 and G2 return the fixed generators, compressed.
	G1() []byte
	G2() []byte

	// CheckG1 and CheckG2 decode a compressed point, enforcing the encoding,
	// the curve equation and the prime-order subgroup.
	CheckG1(raw []byte) error
	CheckG2(raw []byte) error

	// MulG1 and MulG2 return s*P for a single compressed point P.
	MulG1(p []byte, s *big.Int) ([]byte, error)
	MulG2(p []byte, s *big.Int) ([]byte, error)

	// AddG1 and AddG2 return P+Q for compressed points.
	AddG1(p, q []byte) ([]byte, error)
	AddG2(p, q []byte) ([]byte, error)

	// NegG1 returns -P.
	NegG1(p []byte) ([]byte, error)

	// ScaleG1 multiplies point i of the n compressed points in buf by
	// coeff*ratio^i, in place. The power table is built once per call and
	// scrubbed before returning.
	ScaleG1(buf []byte, n int, coeff, ratio *big.Int, workers int) error
	ScaleG2(buf []byte, n int, coeff, ratio *big.Int, workers int) error

	// CombineShiftedG1 returns (sum coeffs[i]*P_i, sum coeffs[i]*P_{i+1})
	// for i in [0, n-1) over the n compressed points in buf, compressed.
	CombineShiftedG1(buf []byte, n int, coeffs []*big.Int, workers int) (a, b []byte, err error)
	CombineShiftedG2(buf []byte, n int, coeffs []*big.Int, workers int) (a, b []byte, err error)

	// SameRatio reports whether e(a1, b0) == e(a0, b1), i.e. whether the
	// scalar taking a0 to a1 equals the scalar taking b0 to b1.
	SameRatio(a0, a1, b0, b1 []byte) (bool, error)

	// HashToG1 and HashToG2 map a message to a subgroup point under a
	// domain-separation tag.
	HashToG1(msg, dst []byte) ([]byte, error)
	HashToG2(msg, dst []byte) ([]byte, error)
}

// For returns the kernel for a curve kind.
func For(kind powersoftau.CurveKind) (Kernel, error) {
	switch kind {
	case powersoftau.BLS12_381:
		return kernelBLS12381{}, nil
	case powersoftau.BLS12_377:
		return kernelBLS12377{}, nil
	case powersoftau.BW6_761:
		return kernelBW6761{}, nil
	case powersoftau.BN254:
		return kernelBN254{}, nil
	default:
		return nil, fmt.Errorf("%w: no kernel for curve %v", powersoftau.ErrConfig, kind)
	}
}

// parallelRange splits [0, n) into at most workers contiguous sub-ranges and
// runs f on each concurrently. Sub-ranges are disjoint, so workers share no
// mutable state; output bytes do not depend on the worker count.
func parallelRange(n, workers int, f func(start, end int) error) error {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		return f(0, n)
	}
	var g errgroup.Group
	stride := (n + workers - 1) / workers
	for start := 0; start < n; start += stride {
		start := start
		end := start + stride
		if end > n {
			end = n
		}
		g.Go(func() error { return f(start, end) })
	}
	return g.Wait()
}
