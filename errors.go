// Package powersoftau holds the shared vocabulary of the ceremony tooling:
// the ceremony configuration (curve, proving system, power, batching and
// chunking parameters) and the failure taxonomy surfaced by the phase 1 and
// phase 2 engines.
package powersoftau

import "errors"

// Failure kinds surfaced by the engines. Operations never recover locally:
// the first failure aborts the operation, partially written output files are
// removed, and the error is classified to a process exit code by ExitCode.
var (
	// ErrConfig marks a bad flag combination or out-of-range parameter.
	ErrConfig = errors.New("invalid configuration")

	// ErrFormat marks a file with the wrong magic, version, or header fields
	// inconsistent with the requested ceremony parameters.
	ErrFormat = errors.New("malformed ceremony file")

	// ErrInvalidPoint marks a group element that failed decompression, the
	// curve equation, or the prime-order subgroup check.
	ErrInvalidPoint = errors.New("invalid group element")

	// ErrHashMismatch marks a response whose parent-hash field does not match
	// the Blake2b-512 of the challenge it claims to extend.
	ErrHashMismatch = errors.New("parent hash mismatch")

	// ErrPokInvalid marks a failed proof-of-knowledge pairing equation.
	ErrPokInvalid = errors.New("proof of knowledge check failed")

	// ErrRatioInvalid marks a failed random-linear-combination pairing check
	// over the power sequences.
	ErrRatioInvalid = errors.New("power ratio check failed")

	// ErrZeroScalar marks a contributor scalar that reduced to zero mod r.
	ErrZeroScalar = errors.New("zero scalar")

	// ErrChunkBoundary marks adjacent chunks disagreeing at their shared index.
	ErrChunkBoundary = errors.New("chunk boundary mismatch")

	// ErrPhase2 marks a failed delta or query-scaling check in phase 2.
	ErrPhase2 = errors.New("phase 2 parameters inconsistent")
)

// ExitCode maps an error to the process exit code contract:
// 0 success, 1 I/O error, 2 configuration/parse error, 3 verification
// failure, 4 invalid point, 5 hash mismatch.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrHashMismatch):
		return 5
	case errors.Is(err, ErrInvalidPoint):
		return 4
	case errors.Is(err, ErrPokInvalid),
		errors.Is(err, ErrRatioInvalid),
		errors.Is(err, ErrZeroScalar),
		errors.Is(err, ErrChunkBoundary),
		errors.Is(err, ErrPhase2):
		return 3
	case errors.Is(err, ErrConfig), errors.Is(err, ErrFormat):
		return 2
	default:
		return 1
	}
}
