package phase2

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/phase1"
	"github.com/giuliop/powersoftau/transcript"
)

// mulCircuit proves knowledge of factors x, y with x*y = z public.
type mulCircuit struct {
	X frontend.Variable
	Y frontend.Variable
	Z frontend.Variable `gnark:",public"`
}

func (c *mulCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.X, c.Y), c.Z)
	return nil
}

const testPower = 3

// buildRadix runs a minimal phase-1 ceremony and the Lagrange conversion,
// returning the radix file path.
func buildRadix(t *testing.T, dir string) string {
	t.Helper()
	cfg := powersoftau.Config{
		Curve:     powersoftau.BN254,
		System:    powersoftau.Groth16,
		Power:     testPower,
		BatchSize: 4,
	}
	c, err := phase1.New(cfg, zerolog.Nop())
	require.NoError(t, err)

	chal := filepath.Join(dir, "challenge")
	resp := filepath.Join(dir, "response")
	next := filepath.Join(dir, "next")
	require.NoError(t, c.Initialize(chal))
	require.NoError(t, c.Contribute(chal, resp, testEntropy(t, dir, 0x01)))
	require.NoError(t, c.VerifyTransform(chal, resp, next))

	radix := filepath.Join(dir, "radix")
	require.NoError(t, c.PrepareRadix(next, radix))
	return radix
}

func testEntropy(t *testing.T, dir string, tag byte) *transcript.Entropy {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = tag + byte(i)
	}
	path := filepath.Join(dir, fmt.Sprintf("seed_%02x", tag))
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0600))
	ent, err := transcript.NewEntropy(path)
	require.NoError(t, err)
	return ent
}

func writeCircuit(t *testing.T, dir string) string {
	t.Helper()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &mulCircuit{})
	require.NoError(t, err)
	path := filepath.Join(dir, "circuit.r1cs")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = ccs.WriteTo(f)
	require.NoError(t, err)
	return path
}

func TestNewContributeVerify(t *testing.T) {
	dir := t.TempDir()
	radix := buildRadix(t, dir)
	circuit := writeCircuit(t, dir)

	p0, err := New(circuit, radix, testPower, zerolog.Nop())
	require.NoError(t, err)
	require.NotZero(t, p0.NbWires)
	require.Equal(t, (1<<testPower)-1, len(p0.H))

	// delta starts at the generators
	_, _, g1, g2 := bn254.Generators()
	require.True(t, p0.DeltaG1.Equal(&g1))
	require.True(t, p0.DeltaG2.Equal(&g2))

	path0 := filepath.Join(dir, "params_0")
	require.NoError(t, p0.WriteFile(path0))

	path1 := filepath.Join(dir, "params_1")
	require.NoError(t, Contribute(path0, path1, testEntropy(t, dir, 0x21), zerolog.Nop()))
	require.NoError(t, Verify(path0, path1, zerolog.Nop()))

	path2 := filepath.Join(dir, "params_2")
	require.NoError(t, Contribute(path1, path2, testEntropy(t, dir, 0x42), zerolog.Nop()))
	require.NoError(t, Verify(path1, path2, zerolog.Nop()))
	require.NoError(t, VerifyChain([]string{path0, path1, path2}, zerolog.Nop()))
}

func TestParamsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	radix := buildRadix(t, dir)
	circuit := writeCircuit(t, dir)

	p, err := New(circuit, radix, testPower, zerolog.Nop())
	require.NoError(t, err)
	path := filepath.Join(dir, "params")
	require.NoError(t, p.WriteFile(path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, p.NbWires, back.NbWires)
	require.Equal(t, p.NbPublic, back.NbPublic)
	require.Equal(t, p.RadixHash, back.RadixHash)
	require.True(t, p.AlphaG1.Equal(&back.AlphaG1))
	require.Equal(t, len(p.H), len(back.H))
	for i := range p.H {
		require.True(t, p.H[i].Equal(&back.H[i]), "h[%d]", i)
	}
	for i := range p.L {
		require.True(t, p.L[i].Equal(&back.L[i]), "l[%d]", i)
	}
}

func TestVerifyRejectsScalingTamper(t *testing.T) {
	dir := t.TempDir()
	radix := buildRadix(t, dir)
	circuit := writeCircuit(t, dir)

	p0, err := New(circuit, radix, testPower, zerolog.Nop())
	require.NoError(t, err)
	path0 := filepath.Join(dir, "params_0")
	require.NoError(t, p0.WriteFile(path0))
	path1 := filepath.Join(dir, "params_1")
	require.NoError(t, Contribute(path0, path1, testEntropy(t, dir, 0x33), zerolog.Nop()))

	// scale one H element by 2: still a valid point, wrong value
	p1, err := ReadFile(path1)
	require.NoError(t, err)
	p1.H[0].ScalarMultiplication(&p1.H[0], big.NewInt(2))
	require.NoError(t, p1.WriteFile(path1))

	err = Verify(path0, path1, zerolog.Nop())
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrPhase2))
	require.Equal(t, 3, powersoftau.ExitCode(err))
}

func TestVerifyRejectsRewrittenHistory(t *testing.T) {
	dir := t.TempDir()
	radix := buildRadix(t, dir)
	circuit := writeCircuit(t, dir)

	p0, err := New(circuit, radix, testPower, zerolog.Nop())
	require.NoError(t, err)
	path0 := filepath.Join(dir, "params_0")
	require.NoError(t, p0.WriteFile(path0))
	path1 := filepath.Join(dir, "params_1")
	require.NoError(t, Contribute(path0, path1, testEntropy(t, dir, 0x44), zerolog.Nop()))
	path2 := filepath.Join(dir, "params_2")
	require.NoError(t, Contribute(path1, path2, testEntropy(t, dir, 0x55), zerolog.Nop()))

	// rewrite the first contribution record in the second step's output
	p2, err := ReadFile(path2)
	require.NoError(t, err)
	_, _, g1, _ := bn254.Generators()
	p2.Contributions[0].PublicG1 = g1
	require.NoError(t, p2.WriteFile(path2))

	err = Verify(path1, path2, zerolog.Nop())
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrPhase2))
}

func TestExportKeys(t *testing.T) {
	dir := t.TempDir()
	radix := buildRadix(t, dir)
	circuit := writeCircuit(t, dir)

	p0, err := New(circuit, radix, testPower, zerolog.Nop())
	require.NoError(t, err)
	path0 := filepath.Join(dir, "params_0")
	require.NoError(t, p0.WriteFile(path0))

	pk := filepath.Join(dir, "pk.bin")
	vk := filepath.Join(dir, "vk.bin")

	// ceremony-start delta must be refused
	err = ExportKeys(path0, pk, vk, zerolog.Nop())
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrConfig))

	path1 := filepath.Join(dir, "params_1")
	require.NoError(t, Contribute(path0, path1, testEntropy(t, dir, 0x66), zerolog.Nop()))
	require.NoError(t, ExportKeys(path1, pk, vk, zerolog.Nop()))

	for _, path := range []string{pk, vk} {
		st, err := os.Stat(path)
		require.NoError(t, err)
		require.NotZero(t, st.Size())
	}
}
