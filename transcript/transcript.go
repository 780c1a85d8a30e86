// Package transcript implements the deterministic hashing and scalar
// derivation shared by every participant: the Blake2b-512 transcript hasher,
// the ChaCha20-based challenge PRNG, contributor entropy handling, and the
// iterated-hash beacon delay function.
package transcript

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"

	powersoftau "github.com/giuliop/powersoftau"
)

// Personalization is absorbed first into every transcript hash. The x/crypto
// blake2b API does not expose the BLAKE2 personalization parameter, so the
// tag is bound as the leading block instead; the domain separation effect is
// the same and the constant is part of the wire protocol.
const Personalization = "ceremony-transcript-v1"

// HashSize is the transcript hash width (Blake2b-512).
const HashSize = blake2b.Size

// Domain-separation bytes for the transcript hash inputs.
const (
	DomainPok    byte = 1
	DomainRlc    byte = 2
	DomainSecret byte = 3
	DomainBeacon byte = 4
)

// Hash computes the Blake2b-512 transcript hash over the personalization tag
// followed by the given blocks.
func Hash(blocks ...[]byte) [HashSize]byte {
	h, _ := blake2b.New512(nil)
	h.Write([]byte(Personalization))
	for _, b := range blocks {
		h.Write(b)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashReader computes the Blake2b-512 transcript hash of a stream, used for
// whole-file hashing of challenges and responses.
func HashReader(r io.Reader) ([HashSize]byte, error) {
	var out [HashSize]byte
	h, _ := blake2b.New512(nil)
	h.Write([]byte(Personalization))
	if _, err := io.Copy(h, r); err != nil {
		return out, fmt.Errorf("hashing stream: %v", err)
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Rng derives an unbounded sequence of field challenges from a 64-byte
// transcript hash: the first 32 bytes key a ChaCha20 stream (zero nonce),
// and each scalar is a 64-byte wide reduction of the keystream modulo r.
// The wide reduction is the curve-fixed choice for all supported curves;
// its bias is at most r/2^512.
type Rng struct {
	stream *chacha20.Cipher
}

// NewRng builds the deterministic challenge PRNG from a transcript hash.
func NewRng(seed [HashSize]byte) *Rng {
	var nonce [chacha20.NonceSize]byte
	stream, err := chacha20.NewUnauthenticatedCipher(seed[:32], nonce[:])
	if err != nil {
		// key and nonce sizes are fixed above; this cannot fail
		panic(err)
	}
	return &Rng{stream: stream}
}

// Scalar returns the next challenge in [0, r). Zero is possible and is the
// caller's concern: random-linear-combination coefficients tolerate it,
// contributor secrets must reject it.
func (g *Rng) Scalar(r *big.Int) *big.Int {
	var wide [64]byte
	g.stream.XORKeyStream(wide[:], wide[:])
	s := new(big.Int).SetBytes(wide[:])
	s.Mod(s, r)
	for i := range wide {
		wide[i] = 0
	}
	return s
}

// SecretScalar returns the next challenge in [1, r), failing with ZeroScalar
// if the reduction lands on zero rather than silently skipping it.
func (g *Rng) SecretScalar(r *big.Int) (*big.Int, error) {
	s := g.Scalar(r)
	if s.Sign() == 0 {
		return nil, fmt.Errorf("%w: derived secret reduced to zero", powersoftau.ErrZeroScalar)
	}
	return s, nil
}

// ChallengeSeed derives the transcript hash that seeds an Rng for one
// derivation context: a domain byte, the role index of the group element
// concerned, the parent challenge hash, and auxiliary public material.
func ChallengeSeed(domain byte, role uint8, parent []byte, aux []byte) [HashSize]byte {
	return Hash([]byte{domain, role}, parent, aux)
}

// Entropy is a contributor's secret seed material. It is consumed exactly
// once and scrubbed by Wipe on every exit path.
type Entropy struct {
	key [32]byte
}

// NewEntropy gathers contributor entropy. When seedPath is non-empty the key
// is derived from the seed file alone (hex, at least 32 bytes), so a
// contributor restarting from the same seed reproduces byte-identical
// output. Without a seed file the key comes from OS randomness.
func NewEntropy(seedPath string) (*Entropy, error) {
	e := &Entropy{}
	if seedPath != "" {
		raw, err := os.ReadFile(seedPath)
		if err != nil {
			return nil, fmt.Errorf("reading seed file: %w", err)
		}
		seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("%w: seed file is not hex: %v", powersoftau.ErrConfig, err)
		}
		if len(seed) < 32 {
			return nil, fmt.Errorf("%w: seed must be at least 32 bytes, got %d",
				powersoftau.ErrConfig, len(seed))
		}
		sum := Hash([]byte{DomainSecret}, seed)
		copy(e.key[:], sum[:32])
		for i := range seed {
			seed[i] = 0
		}
		return e, nil
	}
	if _, err := io.ReadFull(rand.Reader, e.key[:]); err != nil {
		return nil, fmt.Errorf("reading OS randomness: %v", err)
	}
	return e, nil
}

// BeaconEntropy derives entropy from a public beacon string: iterations
// applications of SHA-256 over the 32-byte beacon hash, in constant memory
// regardless of the count.
func BeaconEntropy(beaconHash []byte, iterations uint64) (*Entropy, error) {
	if len(beaconHash) != 32 {
		return nil, fmt.Errorf("%w: beacon hash must be 32 bytes, got %d",
			powersoftau.ErrConfig, len(beaconHash))
	}
	cur := sha256.Sum256(beaconHash)
	for i := uint64(1); i < iterations; i++ {
		cur = sha256.Sum256(cur[:])
	}
	e := &Entropy{}
	sum := Hash([]byte{DomainBeacon}, cur[:])
	copy(e.key[:], sum[:32])
	return e, nil
}

// Secret derives the contributor secret for one role index, in [1, r).
func (e *Entropy) Secret(role uint8, r *big.Int) (*big.Int, error) {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(role))
	seed := Hash([]byte{DomainSecret, role}, e.key[:], idx[:])
	return NewRng(seed).SecretScalar(r)
}

// Wipe scrubs the entropy key. Safe to call more than once.
func (e *Entropy) Wipe() {
	for i := range e.key {
		e.key[i] = 0
	}
}
