package powersoftau

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// CurveKind selects the pairing-friendly curve the ceremony runs over.
type CurveKind uint8

const (
	BLS12_381 CurveKind = iota + 1
	BLS12_377
	BW6_761
	BN254
)

func (c CurveKind) String() string {
	switch c {
	case BLS12_381:
		return "bls12_381"
	case BLS12_377:
		return "bls12_377"
	case BW6_761:
		return "bw6"
	case BN254:
		return "bn254"
	default:
		return "unknown"
	}
}

// ParseCurve parses the --curve-kind flag value.
func ParseCurve(s string) (CurveKind, error) {
	switch s {
	case "bls12_381":
		return BLS12_381, nil
	case "bls12_377":
		return BLS12_377, nil
	case "bw6":
		return BW6_761, nil
	case "bn254":
		return BN254, nil
	default:
		return 0, fmt.Errorf("%w: unknown curve kind %q", ErrConfig, s)
	}
}

// ProvingSystem selects which sequences the accumulator carries.
type ProvingSystem uint8

const (
	Groth16 ProvingSystem = iota + 1
	Marlin
	Plonk
)

func (p ProvingSystem) String() string {
	switch p {
	case Groth16:
		return "groth16"
	case Marlin:
		return "marlin"
	case Plonk:
		return "plonk"
	default:
		return "unknown"
	}
}

// ParseSystem parses the --proving-system flag value.
func ParseSystem(s string) (ProvingSystem, error) {
	switch s {
	case "groth16":
		return Groth16, nil
	case "marlin":
		return Marlin, nil
	case "plonk":
		return Plonk, nil
	default:
		return 0, fmt.Errorf("%w: unknown proving system %q", ErrConfig, s)
	}
}

// Mode selects between a full-form accumulator file and a single chunk.
type Mode uint8

const (
	Full Mode = iota
	Chunked
)

// ParseMode parses the --contribution-mode flag value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "full":
		return Full, nil
	case "chunked":
		return Chunked, nil
	default:
		return 0, fmt.Errorf("%w: unknown contribution mode %q", ErrConfig, s)
	}
}

// Config carries the ceremony parameters. All engine entry points take a
// Config explicitly; nothing is process-global.
type Config struct {
	Curve      CurveKind
	System     ProvingSystem
	Power      int // sequences cover powers of tau up to 2^Power
	BatchSize  int // points transformed or verified per streaming window
	Mode       Mode
	ChunkSize  int
	ChunkIndex int
}

// MaxPower bounds the accumulator size; at this power the Groth16 tau_g1
// sequence alone holds 2^29 - 1 points.
const MaxPower = 28

// DefaultBatchSize is the streaming window used when --batch-size is absent.
const DefaultBatchSize = 1 << 12

// Validate checks the parameter combination before any file is touched.
func (c Config) Validate() error {
	if c.Curve.String() == "unknown" {
		return fmt.Errorf("%w: curve kind not set", ErrConfig)
	}
	if c.System.String() == "unknown" {
		return fmt.Errorf("%w: proving system not set", ErrConfig)
	}
	if c.Power < 1 || c.Power > MaxPower {
		return fmt.Errorf("%w: power %d out of range [1, %d]", ErrConfig, c.Power, MaxPower)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size %d must be positive", ErrConfig, c.BatchSize)
	}
	if c.Mode == Chunked {
		if c.ChunkSize < 2 {
			return fmt.Errorf("%w: chunk size %d must be at least 2", ErrConfig, c.ChunkSize)
		}
		if (1<<c.Power)%c.ChunkSize != 0 {
			return fmt.Errorf("%w: chunk size %d does not divide 2^%d",
				ErrConfig, c.ChunkSize, c.Power)
		}
		if c.ChunkIndex < 0 || c.ChunkIndex >= NumChunks(c.Power, c.System, c.ChunkSize) {
			return fmt.Errorf("%w: chunk index %d out of range", ErrConfig, c.ChunkIndex)
		}
	}
	return nil
}

// Lengths gives the per-sequence element counts for a full accumulator.
type Lengths struct {
	TauG1      int
	TauG2      int
	AlphaTauG1 int
	BetaTauG1  int
	BetaG2     int
}

// LengthsFor returns the sequence lengths for 2^power and a proving system.
// Marlin and Plonk carry only the tau sequences.
func LengthsFor(power int, system ProvingSystem) Lengths {
	n := 1 << power
	if system == Groth16 {
		return Lengths{TauG1: 2*n - 1, TauG2: n, AlphaTauG1: n, BetaTauG1: n, BetaG2: 1}
	}
	return Lengths{TauG1: n, TauG2: n}
}

// NumChunks returns how many chunks partition the flat index space
// [0, len(tau_g1)). Chunk k covers indices [k*size, min((k+1)*size, last)]
// inclusive of the tail boundary element it shares with chunk k+1.
func NumChunks(power int, system ProvingSystem, size int) int {
	last := LengthsFor(power, system).TauG1 - 1
	return (last + size - 1) / size
}

// Workers returns the data-parallel worker count: the CEREMONY_NUM_THREADS
// environment variable when set, otherwise the number of CPUs. This is the
// single ambient knob the engines honor.
func Workers() int {
	if s := os.Getenv("CEREMONY_NUM_THREADS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}
