package transcript

import (
	"encoding/hex"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	powersoftau "github.com/giuliop/powersoftau"
)

// the BN254 scalar field modulus, any large prime does for these tests
var testModulus, _ = new(big.Int).SetString(
	"21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("one"), []byte("two"))
	b := Hash([]byte("one"), []byte("two"))
	require.Equal(t, a, b)
	c := Hash([]byte("one"), []byte("three"))
	require.NotEqual(t, a, c)
}

func TestRngDeterministic(t *testing.T) {
	seed := Hash([]byte("seed"))
	r1 := NewRng(seed)
	r2 := NewRng(seed)
	for i := 0; i < 16; i++ {
		a := r1.Scalar(testModulus)
		b := r2.Scalar(testModulus)
		require.Zero(t, a.Cmp(b), "draw %d", i)
		require.Negative(t, a.Cmp(testModulus))
		require.GreaterOrEqual(t, a.Sign(), 0)
	}
	other := NewRng(Hash([]byte("other")))
	require.NotZero(t, other.Scalar(testModulus).Cmp(NewRng(seed).Scalar(testModulus)))
}

func TestSeedFileDeterminism(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed")
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i * 3)
	}
	require.NoError(t, os.WriteFile(seedPath, []byte(hex.EncodeToString(seed)+"\n"), 0600))

	e1, err := NewEntropy(seedPath)
	require.NoError(t, err)
	e2, err := NewEntropy(seedPath)
	require.NoError(t, err)

	s1, err := e1.Secret(0, testModulus)
	require.NoError(t, err)
	s2, err := e2.Secret(0, testModulus)
	require.NoError(t, err)
	require.Zero(t, s1.Cmp(s2), "same seed file must derive the same secret")

	s3, err := e1.Secret(1, testModulus)
	require.NoError(t, err)
	require.NotZero(t, s1.Cmp(s3), "different roles must derive different secrets")
}

func TestSeedFileTooShort(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed")
	require.NoError(t, os.WriteFile(seedPath, []byte(hex.EncodeToString(make([]byte, 16))), 0600))
	_, err := NewEntropy(seedPath)
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrConfig))
}

func TestSeedFileNotHex(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed")
	require.NoError(t, os.WriteFile(seedPath, []byte("not hex at all"), 0600))
	_, err := NewEntropy(seedPath)
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrConfig))
}

func TestOSEntropyDiffers(t *testing.T) {
	e1, err := NewEntropy("")
	require.NoError(t, err)
	e2, err := NewEntropy("")
	require.NoError(t, err)
	s1, err := e1.Secret(0, testModulus)
	require.NoError(t, err)
	s2, err := e2.Secret(0, testModulus)
	require.NoError(t, err)
	require.NotZero(t, s1.Cmp(s2))
}

func TestBeaconIterationsMatter(t *testing.T) {
	beacon := make([]byte, 32)
	e1, err := BeaconEntropy(beacon, 1)
	require.NoError(t, err)
	e2, err := BeaconEntropy(beacon, 2)
	require.NoError(t, err)
	s1, err := e1.Secret(0, testModulus)
	require.NoError(t, err)
	s2, err := e2.Secret(0, testModulus)
	require.NoError(t, err)
	require.NotZero(t, s1.Cmp(s2))

	e3, err := BeaconEntropy(beacon, 2)
	require.NoError(t, err)
	s3, err := e3.Secret(0, testModulus)
	require.NoError(t, err)
	require.Zero(t, s2.Cmp(s3), "beacon derivation must be deterministic")
}

func TestBeaconHashLength(t *testing.T) {
	_, err := BeaconEntropy(make([]byte, 16), 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, powersoftau.ErrConfig))
}

func TestWipe(t *testing.T) {
	e, err := NewEntropy("")
	require.NoError(t, err)
	e.Wipe()
	require.Equal(t, [32]byte{}, e.key)
	e.Wipe() // idempotent
}
