// Package pok implements the proof of knowledge each contributor publishes
// for every secret scalar they fold into the accumulator. The challenge
// bases are derived from the parent challenge hash by hash-to-curve, so a
// proof is bound to one exact position in one exact transcript and cannot be
// replayed into another ceremony.
package pok

import (
	"fmt"
	"math/big"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/curve"
	"github.com/giuliop/powersoftau/transcript"
)

// Role identifies which contributor scalar a proof covers. AlphaPrime and
// BetaPrime are reserved for proving-system variants that carry the extra
// scalars; no supported system writes records for them today.
type Role uint8

const (
	Tau Role = iota
	Alpha
	Beta
	AlphaPrime
	BetaPrime
)

func (r Role) String() string {
	switch r {
	case Tau:
		return "tau"
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case AlphaPrime:
		return "alpha'"
	case BetaPrime:
		return "beta'"
	default:
		return "unknown"
	}
}

// RolesFor lists the scalars a proving system requires proofs for, in the
// order their records appear on disk.
func RolesFor(system powersoftau.ProvingSystem) []Role {
	if system == powersoftau.Groth16 {
		return []Role{Tau, Alpha, Beta}
	}
	return []Role{Tau}
}

// Hash-to-curve domain separation tags.
var (
	dstG1 = []byte("ceremony-pok-v1:g1")
	dstG2 = []byte("ceremony-pok-v1:g2")
)

// Record is one contributor proof: the public witness s*G1 and the scalar
// applied to the two challenge bases.
type Record struct {
	Role   Role
	Public []byte // s*G1, compressed
	G1SX   []byte // s*g1s, compressed
	G2SX   []byte // s*g2s, compressed
}

// Bases recomputes the challenge bases for a role from the parent challenge
// hash. Both prover and verifier derive them; they are never stored.
func Bases(k curve.Kernel, parent []byte, role Role) (g1s, g2s []byte, err error) {
	seed := transcript.ChallengeSeed(transcript.DomainPok, uint8(role), parent, nil)
	g1s, err = k.HashToG1(seed[:], dstG1)
	if err != nil {
		return nil, nil, err
	}
	g2s, err = k.HashToG2(seed[:], dstG2)
	if err != nil {
		return nil, nil, err
	}
	return g1s, g2s, nil
}

// Generate builds the proof for a secret s at the given role.
func Generate(k curve.Kernel, parent []byte, role Role, s *big.Int) (Record, error) {
	if s == nil || s.Sign() == 0 {
		return Record{}, fmt.Errorf("%w: role %v", powersoftau.ErrZeroScalar, role)
	}
	g1s, g2s, err := Bases(k, parent, role)
	if err != nil {
		return Record{}, err
	}
	pub, err := k.MulG1(k.G1(), s)
	if err != nil {
		return Record{}, err
	}
	g1sx, err := k.MulG1(g1s, s)
	if err != nil {
		return Record{}, err
	}
	g2sx, err := k.MulG2(g2s, s)
	if err != nil {
		return Record{}, err
	}
	return Record{Role: role, Public: pub, G1SX: g1sx, G2SX: g2sx}, nil
}

// Verify checks the proof's internal pairing equations: the same scalar
// takes g1s to G1SX and g2s to G2SX, and the public witness commits to that
// scalar over the fixed generator. The binding of the scalar to the actual
// accumulator transformation is a separate check owned by the verifier of
// the surrounding response.
func Verify(k curve.Kernel, parent []byte, rec Record) error {
	g1s, g2s, err := Bases(k, parent, rec.Role)
	if err != nil {
		return err
	}
	ok, err := k.SameRatio(g1s, rec.G1SX, g2s, rec.G2SX)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: role %v: challenge base equation", powersoftau.ErrPokInvalid, rec.Role)
	}
	ok, err = k.SameRatio(k.G1(), rec.Public, g2s, rec.G2SX)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: role %v: public witness equation", powersoftau.ErrPokInvalid, rec.Role)
	}
	return nil
}

// RecordSize is the on-disk size of one record for a curve.
func RecordSize(k curve.Kernel) int {
	return 1 + 2*k.SizeG1() + k.SizeG2()
}

// BlockSize is the on-disk size of the proof block for a proving system.
func BlockSize(k curve.Kernel, system powersoftau.ProvingSystem) int {
	return len(RolesFor(system)) * RecordSize(k)
}

// MarshalBlock serializes records in role order.
func MarshalBlock(k curve.Kernel, records []Record) []byte {
	out := make([]byte, 0, len(records)*RecordSize(k))
	for _, rec := range records {
		out = append(out, byte(rec.Role))
		out = append(out, rec.Public...)
		out = append(out, rec.G1SX...)
		out = append(out, rec.G2SX...)
	}
	return out
}

// UnmarshalBlock parses the proof block for a proving system, checking the
// role tags match the expected order.
func UnmarshalBlock(k curve.Kernel, system powersoftau.ProvingSystem, raw []byte) ([]Record, error) {
	roles := RolesFor(system)
	if len(raw) != BlockSize(k, system) {
		return nil, fmt.Errorf("%w: proof block is %d bytes, want %d",
			powersoftau.ErrFormat, len(raw), BlockSize(k, system))
	}
	szG1, szG2 := k.SizeG1(), k.SizeG2()
	records := make([]Record, 0, len(roles))
	off := 0
	for _, role := range roles {
		if Role(raw[off]) != role {
			return nil, fmt.Errorf("%w: proof record role %d, want %v",
				powersoftau.ErrFormat, raw[off], role)
		}
		off++
		rec := Record{Role: role}
		rec.Public = append([]byte(nil), raw[off:off+szG1]...)
		off += szG1
		rec.G1SX = append([]byte(nil), raw[off:off+szG1]...)
		off += szG1
		rec.G2SX = append([]byte(nil), raw[off:off+szG2]...)
		off += szG2
		records = append(records, rec)
	}
	return records, nil
}
