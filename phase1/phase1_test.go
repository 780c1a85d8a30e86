package phase1

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/pok"
	"github.com/giuliop/powersoftau/transcript"
)

func testConfig(curve powersoftau.CurveKind, system powersoftau.ProvingSystem, power int) powersoftau.Config {
	return powersoftau.Config{
		Curve:     curve,
		System:    system,
		Power:     power,
		BatchSize: 3, // deliberately tiny to exercise the window logic
	}
}

func newCeremony(t *testing.T, cfg powersoftau.Config) *Ceremony {
	t.Helper()
	c, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return c
}

// writeSeed writes a deterministic hex seed file and returns its path.
func writeSeed(t *testing.T, dir string, tag byte) string {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = tag ^ byte(i*7)
	}
	path := filepath.Join(dir, fmt.Sprintf("seed_%02x", tag))
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0600))
	return path
}

func entropyFrom(t *testing.T, seedPath string) *transcript.Entropy {
	t.Helper()
	ent, err := transcript.NewEntropy(seedPath)
	require.NoError(t, err)
	return ent
}

// secretTau re-derives the tau a seed file produces, for expected-value
// computation alongside the engine.
func secretTau(t *testing.T, seedPath string, r *big.Int) *big.Int {
	t.Helper()
	ent := entropyFrom(t, seedPath)
	tau, err := ent.Secret(uint8(pok.Tau), r)
	require.NoError(t, err)
	return tau
}

// TestFullCeremony runs a three-party ceremony plus beacon at a small power
// and checks both the verification chain and the final tau_g1[1] value
// against the product of the contributors' derived scalars.
func TestFullCeremony(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BN254, powersoftau.Groth16, 3)
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge_0")
	require.NoError(t, c.Initialize(chal))

	const beaconIters = 4
	beaconHex := "0000000000000000000000000000000000000000000000000000000000000620"

	seeds := []string{
		writeSeed(t, dir, 0x11),
		writeSeed(t, dir, 0x22),
		writeSeed(t, dir, 0x33),
	}
	for i, seed := range seeds {
		resp := filepath.Join(dir, fmt.Sprintf("response_%d", i+1))
		next := filepath.Join(dir, fmt.Sprintf("challenge_%d", i+1))
		require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, seed)))
		require.NoError(t, c.VerifyTransform(chal, resp, next))
		chal = next
	}

	beaconResp := filepath.Join(dir, "response_beacon")
	final := filepath.Join(dir, "challenge_final")
	require.NoError(t, c.Beacon(chal, beaconResp, beaconHex, beaconIters))
	require.NoError(t, c.VerifyTransform(chal, beaconResp, final))
	require.NoError(t, c.VerifyRatios(final))

	// tau_g1[1] must be the product of every contributor's tau.
	r := c.k.ScalarField()
	product := big.NewInt(1)
	for _, seed := range seeds {
		product.Mul(product, secretTau(t, seed, r))
		product.Mod(product, r)
	}
	raw, err := hex.DecodeString(beaconHex)
	require.NoError(t, err)
	bent, err := transcript.BeaconEntropy(raw, beaconIters)
	require.NoError(t, err)
	beaconTau, err := bent.Secret(uint8(pok.Tau), r)
	require.NoError(t, err)
	product.Mul(product, beaconTau)
	product.Mod(product, r)

	want, err := c.k.MulG1(c.k.G1(), product)
	require.NoError(t, err)
	got, err := c.PowersG1(final, 2)
	require.NoError(t, err)
	require.Equal(t, want, got[1], "final tau_g1[1] must fold every contribution")
}

// TestVerifyIdempotent re-runs the same verification and expects identical
// output bytes: verification is a pure function of its inputs.
func TestVerifyIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BLS12_381, powersoftau.Groth16, 2)
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge")
	resp := filepath.Join(dir, "response")
	require.NoError(t, c.Initialize(chal))
	require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, writeSeed(t, dir, 0x44))))

	next1 := filepath.Join(dir, "next_1")
	next2 := filepath.Join(dir, "next_2")
	require.NoError(t, c.VerifyTransform(chal, resp, next1))
	require.NoError(t, c.VerifyTransform(chal, resp, next2))

	b1, err := os.ReadFile(next1)
	require.NoError(t, err)
	b2, err := os.ReadFile(next2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestMinimumPower(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BN254, powersoftau.Groth16, 1)
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge")
	resp := filepath.Join(dir, "response")
	next := filepath.Join(dir, "next")
	require.NoError(t, c.Initialize(chal))
	require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, writeSeed(t, dir, 0x55))))
	require.NoError(t, c.VerifyTransform(chal, resp, next))
	require.NoError(t, c.VerifyRatios(next))
}

func TestMarlinCarriesOnlyTau(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BN254, powersoftau.Marlin, 2)
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge")
	resp := filepath.Join(dir, "response")
	next := filepath.Join(dir, "next")
	require.NoError(t, c.Initialize(chal))

	l := powersoftau.LengthsFor(2, powersoftau.Marlin)
	require.Zero(t, l.AlphaTauG1)
	require.Zero(t, l.BetaG2)
	st, err := os.Stat(chal)
	require.NoError(t, err)
	wantSize := int64(HeaderSize) + int64(l.TauG1*c.k.SizeG1()) + int64(l.TauG2*c.k.SizeG2())
	require.Equal(t, wantSize, st.Size())

	require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, writeSeed(t, dir, 0x66))))
	require.NoError(t, c.VerifyTransform(chal, resp, next))
}

// TestTamperedBodyDetected flips one bit inside a response coordinate and
// expects verification to fail with an invalid-point or ratio error, never
// to pass.
func TestTamperedBodyDetected(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BN254, powersoftau.Groth16, 2)
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge")
	resp := filepath.Join(dir, "response")
	require.NoError(t, c.Initialize(chal))
	require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, writeSeed(t, dir, 0x77))))

	raw, err := os.ReadFile(resp)
	require.NoError(t, err)
	// flip a low-order bit inside the x coordinate of a body point, away
	// from the flag bits in the leading byte
	off := len(raw) - 2
	raw[off] ^= 0x01
	tampered := filepath.Join(dir, "tampered")
	require.NoError(t, os.WriteFile(tampered, raw, 0644))

	err = c.VerifyTransform(chal, tampered, filepath.Join(dir, "next"))
	require.Error(t, err)
	code := powersoftau.ExitCode(err)
	require.Contains(t, []int{3, 4}, code, "tampering must surface as verification or point failure, got %v", err)
}

func TestTamperedParentHashDetected(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BN254, powersoftau.Groth16, 2)
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge")
	resp := filepath.Join(dir, "response")
	require.NoError(t, c.Initialize(chal))
	require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, writeSeed(t, dir, 0x88))))

	raw, err := os.ReadFile(resp)
	require.NoError(t, err)
	raw[preludeSize+7] ^= 0xff // inside the parent-hash field
	require.NoError(t, os.WriteFile(resp, raw, 0644))

	err = c.VerifyTransform(chal, resp, filepath.Join(dir, "next"))
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrHashMismatch))
	require.Equal(t, 5, powersoftau.ExitCode(err))
}

func TestSplitCombineRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BN254, powersoftau.Groth16, 3)
	cfg.ChunkSize = 4
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge")
	resp := filepath.Join(dir, "response")
	next := filepath.Join(dir, "next")
	require.NoError(t, c.Initialize(chal))
	require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, writeSeed(t, dir, 0x99))))
	require.NoError(t, c.VerifyTransform(chal, resp, next))

	paths, err := c.Split(next, filepath.Join(dir, "chunk"))
	require.NoError(t, err)
	require.Len(t, paths, powersoftau.NumChunks(3, powersoftau.Groth16, 4))

	combined := filepath.Join(dir, "combined")
	require.NoError(t, c.Combine(paths, combined))

	want, err := os.ReadFile(next)
	require.NoError(t, err)
	got, err := os.ReadFile(combined)
	require.NoError(t, err)
	require.Equal(t, want, got, "combine(split(x)) must reproduce x byte for byte")

	// and splitting the combined file reproduces the chunks
	paths2, err := c.Split(combined, filepath.Join(dir, "chunk2"))
	require.NoError(t, err)
	for i := range paths {
		a, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		b, err := os.ReadFile(paths2[i])
		require.NoError(t, err)
		require.Equal(t, a, b, "chunk %d", i)
	}
}

func TestCombineDetectsBoundaryTampering(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BN254, powersoftau.Groth16, 3)
	cfg.ChunkSize = 4
	c := newCeremony(t, cfg)

	chal := filepath.Join(dir, "challenge")
	require.NoError(t, c.Initialize(chal))
	resp := filepath.Join(dir, "response")
	next := filepath.Join(dir, "next")
	require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, writeSeed(t, dir, 0xaa))))
	require.NoError(t, c.VerifyTransform(chal, resp, next))

	paths, err := c.Split(next, filepath.Join(dir, "chunk"))
	require.NoError(t, err)

	// replace chunk 1's copy of the shared boundary point with a different
	// valid point (the generator), so only the boundary check can notice
	chunkCfg := cfg
	chunkCfg.Mode = powersoftau.Chunked
	chunkCfg.ChunkIndex = 1
	cc := newCeremony(t, chunkCfg)
	f, h, err := openAccumulator(paths[1], cc.k, chunkCfg)
	require.NoError(t, err)
	off := h.pointOffset(cc.k, seqTauG1, h.spanOf(seqTauG1).lo)
	f.Close()
	raw, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	copy(raw[off:], cc.k.G1())
	require.NoError(t, os.WriteFile(paths[1], raw, 0644))

	err = c.Combine(paths, filepath.Join(dir, "combined"))
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrChunkBoundary))
}

// TestChunkedCeremony drives per-chunk contributions with a shared seed,
// verifies each chunk, combines, and checks the whole.
func TestChunkedCeremony(t *testing.T) {
	dir := t.TempDir()
	base := testConfig(powersoftau.BN254, powersoftau.Groth16, 3)
	base.Mode = powersoftau.Chunked
	base.ChunkSize = 4
	numChunks := powersoftau.NumChunks(3, powersoftau.Groth16, 4)
	seed := writeSeed(t, dir, 0xbb)

	var finals []string
	for idx := 0; idx < numChunks; idx++ {
		cfg := base
		cfg.ChunkIndex = idx
		c := newCeremony(t, cfg)

		chal := filepath.Join(dir, fmt.Sprintf("chal_%d", idx))
		resp := filepath.Join(dir, fmt.Sprintf("resp_%d", idx))
		next := filepath.Join(dir, fmt.Sprintf("next_%d", idx))
		require.NoError(t, c.Initialize(chal))
		require.NoError(t, c.Contribute(chal, resp, entropyFrom(t, seed)))
		require.NoError(t, c.VerifyTransform(chal, resp, next))
		finals = append(finals, next)
	}

	combiner := base
	combiner.ChunkIndex = 0
	c := newCeremony(t, combiner)
	combined := filepath.Join(dir, "combined")
	require.NoError(t, c.Combine(finals, combined))

	fullCfg := testConfig(powersoftau.BN254, powersoftau.Groth16, 3)
	full := newCeremony(t, fullCfg)
	require.NoError(t, full.VerifyRatios(combined))
}

// TestSingleChunkMatchesFull checks that a single chunk covering the whole
// index space carries a body byte-identical to full mode.
func TestSingleChunkMatchesFull(t *testing.T) {
	dir := t.TempDir()

	fullCfg := testConfig(powersoftau.BN254, powersoftau.Marlin, 3)
	full := newCeremony(t, fullCfg)
	fullPath := filepath.Join(dir, "full")
	require.NoError(t, full.Initialize(fullPath))

	chunkCfg := fullCfg
	chunkCfg.Mode = powersoftau.Chunked
	chunkCfg.ChunkSize = 8 // tau_g1 length for marlin at power 3
	chunkCfg.ChunkIndex = 0
	require.Equal(t, 1, powersoftau.NumChunks(3, powersoftau.Marlin, 8))
	chunk := newCeremony(t, chunkCfg)
	chunkPath := filepath.Join(dir, "chunk")
	require.NoError(t, chunk.Initialize(chunkPath))

	a, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	b, err := os.ReadFile(chunkPath)
	require.NoError(t, err)
	require.Equal(t, a[HeaderSize:], b[HeaderSize:],
		"single-chunk body must match full mode, headers differ only in chunk metadata")
}
