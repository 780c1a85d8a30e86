package powersoftau

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{Curve: BLS12_381, System: Groth16, Power: 8, BatchSize: 256}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing curve", func(c *Config) { c.Curve = 0 }},
		{"missing system", func(c *Config) { c.System = 0 }},
		{"power too small", func(c *Config) { c.Power = 0 }},
		{"power too large", func(c *Config) { c.Power = MaxPower + 1 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"chunk size not dividing", func(c *Config) {
			c.Mode = Chunked
			c.ChunkSize = 100
		}},
		{"chunk index out of range", func(c *Config) {
			c.Mode = Chunked
			c.ChunkSize = 64
			c.ChunkIndex = NumChunks(c.Power, c.System, 64)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrConfig))
			require.Equal(t, 2, ExitCode(err))
		})
	}
}

func TestLengths(t *testing.T) {
	l := LengthsFor(8, Groth16)
	require.Equal(t, Lengths{TauG1: 511, TauG2: 256, AlphaTauG1: 256, BetaTauG1: 256, BetaG2: 1}, l)

	l = LengthsFor(8, Marlin)
	require.Equal(t, Lengths{TauG1: 256, TauG2: 256}, l)

	l = LengthsFor(8, Plonk)
	require.Equal(t, Lengths{TauG1: 256, TauG2: 256}, l)
}

func TestNumChunks(t *testing.T) {
	// the canonical chunked scenario: power 10, chunk size 512, 4 chunks
	require.Equal(t, 4, NumChunks(10, Groth16, 512))
	require.Equal(t, 1, NumChunks(3, Marlin, 8))
	require.Equal(t, 4, NumChunks(3, Groth16, 4))
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{fmt.Errorf("wrapped: %w", ErrHashMismatch), 5},
		{fmt.Errorf("wrapped: %w", ErrInvalidPoint), 4},
		{fmt.Errorf("wrapped: %w", ErrPokInvalid), 3},
		{fmt.Errorf("wrapped: %w", ErrRatioInvalid), 3},
		{fmt.Errorf("wrapped: %w", ErrZeroScalar), 3},
		{fmt.Errorf("wrapped: %w", ErrChunkBoundary), 3},
		{fmt.Errorf("wrapped: %w", ErrPhase2), 3},
		{fmt.Errorf("wrapped: %w", ErrConfig), 2},
		{fmt.Errorf("wrapped: %w", ErrFormat), 2},
		{errors.New("an i/o failure"), 1},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, ExitCode(tc.err))
	}
}

func TestParsers(t *testing.T) {
	for _, s := range []string{"bls12_381", "bls12_377", "bw6", "bn254"} {
		k, err := ParseCurve(s)
		require.NoError(t, err)
		require.Equal(t, s, k.String())
	}
	_, err := ParseCurve("secp256k1")
	require.Error(t, err)

	for _, s := range []string{"groth16", "marlin", "plonk"} {
		p, err := ParseSystem(s)
		require.NoError(t, err)
		require.Equal(t, s, p.String())
	}
	_, err = ParseSystem("stark")
	require.Error(t, err)
}
