package phase1

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/transcript"
)

// Split partitions a full-form file into chunk files named prefix_0,
// prefix_1, ... using the configured chunk size. Each chunk carries the
// parent hash and, for responses, the proof block of the full file, and
// includes the tail boundary element it shares with its successor.
func (c *Ceremony) Split(fullPath, prefix string) (paths []string, err error) {
	if c.cfg.ChunkSize < 2 {
		return nil, fmt.Errorf("%w: split requires a chunk size", powersoftau.ErrConfig)
	}
	fullCfg := c.cfg
	fullCfg.Mode = powersoftau.Full
	f, h, err := openAccumulator(fullPath, c.k, fullCfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pokBlock := make([]byte, h.pokBlockSize(c.k))
	if len(pokBlock) > 0 {
		if _, err := f.ReadAt(pokBlock, HeaderSize); err != nil {
			return nil, fmt.Errorf("%w: reading proof block: %v", powersoftau.ErrFormat, err)
		}
	}

	defer func() {
		if err != nil {
			for _, p := range paths {
				os.Remove(p)
			}
		}
	}()

	n := powersoftau.NumChunks(c.cfg.Power, c.cfg.System, c.cfg.ChunkSize)
	for idx := 0; idx < n; idx++ {
		ch := h
		ch.Mode = powersoftau.Chunked
		ch.ChunkIndex = uint32(idx)
		ch.ChunkSize = uint32(c.cfg.ChunkSize)

		path := fmt.Sprintf("%s_%d", prefix, idx)
		if err = c.writeSlice(f, h, ch, pokBlock, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	c.log.Info().Int("chunks", n).Str("prefix", prefix).Msg("split transcript")
	return paths, nil
}

// writeSlice writes one chunk file, copying each sequence's covered range
// out of the full file.
func (c *Ceremony) writeSlice(full *os.File, fullHdr, chunkHdr Header, pokBlock []byte, path string) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriterSize(out, 1<<20)
	hdr := chunkHdr.marshal()
	if _, err = w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err = w.Write(pokBlock); err != nil {
		return fmt.Errorf("writing proof block: %w", err)
	}
	for seq := seqTauG1; seq < numSeqs; seq++ {
		sp := chunkHdr.spanOf(seq)
		if sp.count() == 0 {
			continue
		}
		sz := int64(pointSize(c.k, seq))
		src := io.NewSectionReader(full, fullHdr.pointOffset(c.k, seq, sp.lo), int64(sp.count())*sz)
		if _, err = io.Copy(w, src); err != nil {
			return fmt.Errorf("copying %v slice: %w", seq, err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}

// Combine concatenates chunk files back into a full-form file, enforcing
// boundary continuity, and then runs the full random-linear-combination
// verification across the whole, now traversing the former chunk borders.
//
// Adjacent chunks share their boundary index by construction; any byte
// disagreement there means one side was tampered with after contribution.
// When every chunk carries the same parent hash and kind (the split case)
// both are preserved, so combine(split(x)) reproduces x byte for byte.
// Heterogeneous chunks (contributors interleaved across chunks) are instead
// promoted to a challenge whose parent hash digests the per-chunk parents.
func (c *Ceremony) Combine(paths []string, outPath string) (err error) {
	if len(paths) == 0 {
		return fmt.Errorf("%w: empty chunk list", powersoftau.ErrConfig)
	}
	if c.cfg.ChunkSize < 2 {
		return fmt.Errorf("%w: combine requires a chunk size", powersoftau.ErrConfig)
	}
	want := powersoftau.NumChunks(c.cfg.Power, c.cfg.System, c.cfg.ChunkSize)
	if len(paths) != want {
		return fmt.Errorf("%w: got %d chunk files, want %d", powersoftau.ErrConfig, len(paths), want)
	}

	files := make([]*os.File, len(paths))
	hdrs := make([]Header, len(paths))
	defer func() {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
	}()
	chunkCfg := c.cfg
	chunkCfg.Mode = powersoftau.Chunked
	for i, path := range paths {
		chunkCfg.ChunkIndex = i
		f, h, err := openAccumulator(path, c.k, chunkCfg)
		if err != nil {
			return err
		}
		files[i], hdrs[i] = f, h
		if h.Kind != hdrs[0].Kind {
			return fmt.Errorf("%w: chunk %d kind %v, chunk 0 kind %v",
				powersoftau.ErrFormat, i, h.Kind, hdrs[0].Kind)
		}
	}

	// Boundary continuity: the last point of chunk k must equal the first
	// point of chunk k+1 in every sequence both cover.
	for i := 0; i+1 < len(files); i++ {
		for seq := seqTauG1; seq < numSeqs; seq++ {
			left, right := hdrs[i].spanOf(seq), hdrs[i+1].spanOf(seq)
			if left.count() == 0 || right.count() == 0 {
				continue
			}
			if left.hi != right.lo {
				continue
			}
			lp, err := readPoint(files[i], hdrs[i], c.k, seq, left.hi)
			if err != nil {
				return err
			}
			rp, err := readPoint(files[i+1], hdrs[i+1], c.k, seq, right.lo)
			if err != nil {
				return err
			}
			if !bytes.Equal(lp, rp) {
				return fmt.Errorf("%w: %v[%d] differs between chunks %d and %d",
					powersoftau.ErrChunkBoundary, seq, left.hi, i, i+1)
			}
		}
	}

	homogeneous := true
	for _, h := range hdrs[1:] {
		if h.ParentHash != hdrs[0].ParentHash {
			homogeneous = false
			break
		}
	}

	outHdr := hdrs[0]
	outHdr.Mode = powersoftau.Full
	outHdr.ChunkIndex = 0
	outHdr.ChunkSize = 0
	if !homogeneous {
		outHdr.Kind = KindChallenge
		all := make([]byte, 0, len(hdrs)*transcript.HashSize)
		for _, h := range hdrs {
			all = append(all, h.ParentHash[:]...)
		}
		outHdr.ParentHash = transcript.Hash(all)
	}

	if err = c.writeCombined(files, hdrs, outHdr, outPath); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(outPath)
		}
	}()

	// Full-form verification across the former chunk boundaries.
	fullCfg := c.cfg
	fullCfg.Mode = powersoftau.Full
	full, err := New(fullCfg, c.log)
	if err != nil {
		return err
	}
	if err = full.VerifyRatios(outPath); err != nil {
		return err
	}
	c.log.Info().Str("combined", outPath).Msg("chunks combined and verified")
	return nil
}

func (c *Ceremony) writeCombined(files []*os.File, hdrs []Header, outHdr Header, outPath string) (err error) {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(outPath)
		}
	}()

	w := bufio.NewWriterSize(out, 1<<20)
	hdr := outHdr.marshal()
	if _, err = w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if n := outHdr.pokBlockSize(c.k); n > 0 {
		block := make([]byte, n)
		if _, err = files[0].ReadAt(block, HeaderSize); err != nil {
			return fmt.Errorf("%w: reading proof block: %v", powersoftau.ErrFormat, err)
		}
		if _, err = w.Write(block); err != nil {
			return fmt.Errorf("writing proof block: %w", err)
		}
	}
	for seq := seqTauG1; seq < numSeqs; seq++ {
		next := 0 // next global index to emit
		for i := range files {
			sp := hdrs[i].spanOf(seq)
			if sp.count() == 0 || sp.hi < next {
				continue
			}
			lo := sp.lo
			if lo < next {
				lo = next // skip the duplicated boundary element
			}
			sz := int64(pointSize(c.k, seq))
			src := io.NewSectionReader(files[i], hdrs[i].pointOffset(c.k, seq, lo),
				int64(sp.hi-lo+1)*sz)
			if _, err = io.Copy(w, src); err != nil {
				return fmt.Errorf("copying %v from chunk %d: %w", seq, i, err)
			}
			next = sp.hi + 1
		}
		if want := fullLength(outHdr, seq); next != want {
			return fmt.Errorf("%w: %v covers %d of %d points", powersoftau.ErrFormat, seq, next, want)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", outPath, err)
	}
	return nil
}

