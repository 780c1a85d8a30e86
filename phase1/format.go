// Package phase1 implements the accumulator engine of the ceremony: identity
// state creation, streamed contribution and beacon transforms, proof and
// ratio verification, and splitting and combining of chunked transcripts.
//
// Files are processed through a batch-sized window: inputs are read with
// pread-style random access at offsets that are pure functions of the header
// parameters, outputs are written sequentially. The full accumulator is
// never materialized in memory, except by the Lagrange conversion
// (PrepareRadix), which loads whole sequences.
package phase1

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/curve"
	"github.com/giuliop/powersoftau/pok"
	"github.com/giuliop/powersoftau/transcript"
)

// Kind distinguishes the file types sharing the common header.
type Kind uint8

const (
	KindChallenge Kind = iota
	KindResponse
	KindRadix
)

func (k Kind) String() string {
	switch k {
	case KindChallenge:
		return "challenge"
	case KindResponse:
		return "response"
	case KindRadix:
		return "radix"
	default:
		return "unknown"
	}
}

var magic = [4]byte{'P', 'O', 'T', 'F'}

const formatVersion = 1

// preludeSize is the fixed header prelude; HeaderSize adds the parent hash.
const preludeSize = 24

// HeaderSize is the byte offset at which the proof block (responses) or the
// body (challenges) starts.
const HeaderSize = preludeSize + transcript.HashSize

// Header is the fixed-size prefix of every ceremony file. Every byte
// position in the file is a pure function of its fields.
type Header struct {
	Kind       Kind
	Curve      powersoftau.CurveKind
	System     powersoftau.ProvingSystem
	Power      uint8
	Mode       powersoftau.Mode
	ChunkIndex uint32
	ChunkSize  uint32
	ParentHash [transcript.HashSize]byte
}

func (h Header) marshal() [HeaderSize]byte {
	var out [HeaderSize]byte
	copy(out[:4], magic[:])
	binary.BigEndian.PutUint16(out[4:6], formatVersion)
	out[6] = byte(h.Kind)
	out[7] = byte(h.Curve)
	out[8] = byte(h.System)
	out[9] = h.Power
	out[10] = byte(h.Mode)
	binary.BigEndian.PutUint32(out[12:16], h.ChunkIndex)
	binary.BigEndian.PutUint32(out[16:20], h.ChunkSize)
	copy(out[preludeSize:], h.ParentHash[:])
	return out
}

func parseHeader(raw []byte) (Header, error) {
	var h Header
	if len(raw) < HeaderSize {
		return h, fmt.Errorf("%w: truncated header (%d bytes)", powersoftau.ErrFormat, len(raw))
	}
	if [4]byte(raw[:4]) != magic {
		return h, fmt.Errorf("%w: bad magic %q", powersoftau.ErrFormat, raw[:4])
	}
	if v := binary.BigEndian.Uint16(raw[4:6]); v != formatVersion {
		return h, fmt.Errorf("%w: unsupported format version %d", powersoftau.ErrFormat, v)
	}
	h.Kind = Kind(raw[6])
	h.Curve = powersoftau.CurveKind(raw[7])
	h.System = powersoftau.ProvingSystem(raw[8])
	h.Power = raw[9]
	h.Mode = powersoftau.Mode(raw[10])
	h.ChunkIndex = binary.BigEndian.Uint32(raw[12:16])
	h.ChunkSize = binary.BigEndian.Uint32(raw[16:20])
	copy(h.ParentHash[:], raw[preludeSize:HeaderSize])
	return h, nil
}

// matches checks a file header against the requested ceremony parameters.
// A curve or proving-system mismatch is a format error, never a silent
// decode under the wrong codec.
func (h Header) matches(cfg powersoftau.Config, kind Kind) error {
	if h.Kind != kind {
		return fmt.Errorf("%w: file is a %v, want a %v", powersoftau.ErrFormat, h.Kind, kind)
	}
	if h.Curve != cfg.Curve {
		return fmt.Errorf("%w: file curve %v, want %v", powersoftau.ErrFormat, h.Curve, cfg.Curve)
	}
	if h.System != cfg.System {
		return fmt.Errorf("%w: file proving system %v, want %v",
			powersoftau.ErrFormat, h.System, cfg.System)
	}
	if int(h.Power) != cfg.Power {
		return fmt.Errorf("%w: file power %d, want %d", powersoftau.ErrFormat, h.Power, cfg.Power)
	}
	if h.Mode != cfg.Mode {
		return fmt.Errorf("%w: file contribution mode mismatch", powersoftau.ErrFormat)
	}
	if h.Mode == powersoftau.Chunked {
		if int(h.ChunkIndex) != cfg.ChunkIndex || int(h.ChunkSize) != cfg.ChunkSize {
			return fmt.Errorf("%w: file covers chunk %d/%d, want %d/%d", powersoftau.ErrFormat,
				h.ChunkIndex, h.ChunkSize, cfg.ChunkIndex, cfg.ChunkSize)
		}
	}
	return nil
}

// seqID enumerates the accumulator sequences in on-disk order.
type seqID int

const (
	seqTauG1 seqID = iota
	seqTauG2
	seqAlphaTauG1
	seqBetaTauG1
	seqBetaG2
	numSeqs
)

func (s seqID) String() string {
	switch s {
	case seqTauG1:
		return "tau_g1"
	case seqTauG2:
		return "tau_g2"
	case seqAlphaTauG1:
		return "alpha_tau_g1"
	case seqBetaTauG1:
		return "beta_tau_g1"
	case seqBetaG2:
		return "beta_g2"
	default:
		return "unknown"
	}
}

// inG2 reports whether a sequence holds G2 elements.
func (s seqID) inG2() bool { return s == seqTauG2 || s == seqBetaG2 }

func fullLength(h Header, seq seqID) int {
	l := powersoftau.LengthsFor(int(h.Power), h.System)
	switch seq {
	case seqTauG1:
		return l.TauG1
	case seqTauG2:
		return l.TauG2
	case seqAlphaTauG1:
		return l.AlphaTauG1
	case seqBetaTauG1:
		return l.BetaTauG1
	case seqBetaG2:
		return l.BetaG2
	default:
		return 0
	}
}

// span is the inclusive global index range a file covers for one sequence.
// A chunk covers [k*size, min((k+1)*size, last)] of the flat index space and
// each sequence contributes its intersection with that range; the shared
// tail index is the boundary element the combiner checks.
type span struct {
	lo, hi int // hi inclusive; empty when hi < lo
}

func (s span) count() int {
	if s.hi < s.lo {
		return 0
	}
	return s.hi - s.lo + 1
}

func (s span) contains(i int) bool { return i >= s.lo && i <= s.hi }

func (h Header) spanOf(seq seqID) span {
	n := fullLength(h, seq)
	if n == 0 {
		return span{0, -1}
	}
	if h.Mode == powersoftau.Full {
		return span{0, n - 1}
	}
	flatLast := fullLength(h, seqTauG1) - 1
	lo := int(h.ChunkIndex) * int(h.ChunkSize)
	hi := lo + int(h.ChunkSize)
	if hi > flatLast {
		hi = flatLast
	}
	if hi > n-1 {
		hi = n - 1
	}
	return span{lo, hi}
}

func pointSize(k curve.Kernel, seq seqID) int {
	if seq.inG2() {
		return k.SizeG2()
	}
	return k.SizeG1()
}

// pokBlockSize is zero for challenges; responses carry one proof record per
// role of the proving system.
func (h Header) pokBlockSize(k curve.Kernel) int {
	if h.Kind != KindResponse {
		return 0
	}
	return pok.BlockSize(k, h.System)
}

// seqOffset returns the byte offset of a sequence's first point.
func (h Header) seqOffset(k curve.Kernel, seq seqID) int64 {
	off := int64(HeaderSize + h.pokBlockSize(k))
	for s := seqTauG1; s < seq; s++ {
		off += int64(h.spanOf(s).count()) * int64(pointSize(k, s))
	}
	return off
}

// fileSize returns the total expected size of the file.
func (h Header) fileSize(k curve.Kernel) int64 {
	return h.seqOffset(k, numSeqs)
}

// pointOffset returns the byte offset of global index i of a sequence.
func (h Header) pointOffset(k curve.Kernel, seq seqID, i int) int64 {
	sp := h.spanOf(seq)
	return h.seqOffset(k, seq) + int64(i-sp.lo)*int64(pointSize(k, seq))
}

// openFile opens a ceremony file read-only and parses and checks its header.
func openFile(path string, k curve.Kernel, cfg powersoftau.Config, kind Kind) (*os.File, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("opening %s: %w", path, err)
	}
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(f, raw[:]); err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("%w: reading header of %s: %v", powersoftau.ErrFormat, path, err)
	}
	h, err := parseHeader(raw[:])
	if err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := h.matches(cfg, kind); err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("%s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size() != h.fileSize(k) {
		f.Close()
		return nil, Header{}, fmt.Errorf("%w: %s is %d bytes, want %d",
			powersoftau.ErrFormat, path, st.Size(), h.fileSize(k))
	}
	return f, h, nil
}

// openAccumulator opens a challenge or response file, whichever kind it is,
// and checks it against the ceremony parameters.
func openAccumulator(path string, k curve.Kernel, cfg powersoftau.Config) (*os.File, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("opening %s: %w", path, err)
	}
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(f, raw[:]); err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("%w: reading header of %s: %v", powersoftau.ErrFormat, path, err)
	}
	h, err := parseHeader(raw[:])
	if err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("%s: %w", path, err)
	}
	if h.Kind == KindRadix {
		f.Close()
		return nil, Header{}, fmt.Errorf("%w: %s is a radix file", powersoftau.ErrFormat, path)
	}
	if err := h.matches(cfg, h.Kind); err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("%s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size() != h.fileSize(k) {
		f.Close()
		return nil, Header{}, fmt.Errorf("%w: %s is %d bytes, want %d",
			powersoftau.ErrFormat, path, st.Size(), h.fileSize(k))
	}
	return f, h, nil
}

// readPokBlock reads and parses a response's proof records.
func readPokBlock(f io.ReaderAt, h Header, k curve.Kernel) ([]pok.Record, error) {
	raw := make([]byte, h.pokBlockSize(k))
	if _, err := f.ReadAt(raw, HeaderSize); err != nil {
		return nil, fmt.Errorf("%w: reading proof block: %v", powersoftau.ErrFormat, err)
	}
	return pok.UnmarshalBlock(k, h.System, raw)
}

// readPoint reads the compressed point at global index i of a sequence.
func readPoint(f io.ReaderAt, h Header, k curve.Kernel, seq seqID, i int) ([]byte, error) {
	if !h.spanOf(seq).contains(i) {
		return nil, fmt.Errorf("%w: %v[%d] not covered by file", powersoftau.ErrFormat, seq, i)
	}
	buf := make([]byte, pointSize(k, seq))
	if _, err := f.ReadAt(buf, h.pointOffset(k, seq, i)); err != nil {
		return nil, fmt.Errorf("reading %v[%d]: %w", seq, i, err)
	}
	return buf, nil
}

// HashFile computes the transcript hash of a whole file.
func HashFile(path string) ([transcript.HashSize]byte, error) {
	var zero [transcript.HashSize]byte
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return transcript.HashReader(f)
}

// WriteHashSidecar writes the hex transcript hash of target to sidecar, the
// integrity receipt participants publish out-of-band.
func WriteHashSidecar(sidecar, target string) error {
	if sidecar == "" {
		return nil
	}
	sum, err := HashFile(target)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecar, []byte(hex.EncodeToString(sum[:])+"\n"), 0644)
}
