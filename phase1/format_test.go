package phase1

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	powersoftau "github.com/giuliop/powersoftau"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Kind:       KindResponse,
		Curve:      powersoftau.BW6_761,
		System:     powersoftau.Groth16,
		Power:      10,
		Mode:       powersoftau.Chunked,
		ChunkIndex: 3,
		ChunkSize:  512,
	}
	for i := range h.ParentHash {
		h.ParentHash[i] = byte(i)
	}
	raw := h.marshal()
	back, err := parseHeader(raw[:])
	require.NoError(t, err)
	require.Equal(t, h, back)
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	h := Header{Kind: KindChallenge, Curve: powersoftau.BN254, System: powersoftau.Groth16, Power: 2}
	raw := h.marshal()
	raw[0] = 'X'
	_, err := parseHeader(raw[:])
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrFormat))
}

func TestParseHeaderRejectsBadVersion(t *testing.T) {
	h := Header{Kind: KindChallenge, Curve: powersoftau.BN254, System: powersoftau.Groth16, Power: 2}
	raw := h.marshal()
	raw[5] = 99
	_, err := parseHeader(raw[:])
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrFormat))
}

// TestCrossCurveIsolation opens a BLS12-381 transcript under a BW6 config
// and expects a format error, not a silent decode.
func TestCrossCurveIsolation(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(powersoftau.BLS12_381, powersoftau.Groth16, 2)
	c := newCeremony(t, cfg)
	path := filepath.Join(dir, "challenge")
	require.NoError(t, c.Initialize(path))

	other := testConfig(powersoftau.BW6_761, powersoftau.Groth16, 2)
	oc, err := New(other, zerolog.Nop())
	require.NoError(t, err)
	err = oc.VerifyRatios(path)
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrFormat))
	require.Equal(t, 2, powersoftau.ExitCode(err))
}

func TestSpans(t *testing.T) {
	h := Header{
		Kind: KindChallenge, Curve: powersoftau.BN254,
		System: powersoftau.Groth16, Power: 3,
		Mode: powersoftau.Chunked, ChunkSize: 4,
	}
	// power 3, groth16: tau_g1 has 15 elements, others 8 (beta_g2 one)

	h.ChunkIndex = 0
	require.Equal(t, span{0, 4}, h.spanOf(seqTauG1))
	require.Equal(t, span{0, 4}, h.spanOf(seqTauG2))
	require.Equal(t, span{0, 0}, h.spanOf(seqBetaG2))

	h.ChunkIndex = 1
	require.Equal(t, span{4, 8}, h.spanOf(seqTauG1))
	require.Equal(t, span{4, 7}, h.spanOf(seqTauG2))
	require.Zero(t, h.spanOf(seqBetaG2).count())

	h.ChunkIndex = 3
	require.Equal(t, span{12, 14}, h.spanOf(seqTauG1))
	require.Zero(t, h.spanOf(seqTauG2).count())

	require.Equal(t, 4, powersoftau.NumChunks(3, powersoftau.Groth16, 4))
}

func TestFileSizeAccountsForPok(t *testing.T) {
	ch := Header{Kind: KindChallenge, Curve: powersoftau.BN254, System: powersoftau.Groth16, Power: 2}
	resp := ch
	resp.Kind = KindResponse
	c := newCeremony(t, testConfig(powersoftau.BN254, powersoftau.Groth16, 2))
	require.Greater(t, resp.fileSize(c.k), ch.fileSize(c.k))
	require.Equal(t, int64(resp.pokBlockSize(c.k)), resp.fileSize(c.k)-ch.fileSize(c.k))
}
