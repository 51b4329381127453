package node

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// TypeRecord is the catalog tag of the frame recorder stage.
const TypeRecord = "record"

// recordMagic starts every record so a reader can detect corruption and
// misaligned seeks.
const recordMagic uint32 = 0x50414652 // "PAFR"

// RecordStage persists every traversing frame to a length-prefixed binary
// log and forwards the frame unchanged. The output path is structural;
// the size limit hot-reloads.
type RecordStage struct {
	base
	path    string
	maxSize atomic.Int64

	file    *os.File
	writer  *bufio.Writer
	written int64
}

// NewRecordStage builds a recorder from the "path" parameter and an
// optional "max_size_bytes" rotation limit (0 disables rotation).
func NewRecordStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) && deps.DataDir != "" {
		path = filepath.Join(deps.DataDir, path)
	}

	maxSize, err := OptionalIntParam(params, "max_size_bytes", 0)
	if err != nil {
		return nil, err
	}
	if maxSize < 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: max_size_bytes must not be negative", errors.ErrInvalidConfig),
			"record", "validate", "checking size limit")
	}

	s := &RecordStage{base: newBase(id, TypeRecord, deps), path: path}
	s.maxSize.Store(int64(maxSize))
	return s, nil
}

// Path returns the resolved output path.
func (s *RecordStage) Path() string { return s.path }

// Accepts reports the shapes consumable by this stage.
func (s *RecordStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeDualChannel || shape == frame.ShapeSingleChannel ||
		shape == frame.ShapeAnalytic
}

// OutputShape returns the produced shape for an accepted input.
func (s *RecordStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process appends the frame to the log and forwards it unchanged. Write
// failures are frame-scoped: the frame still propagates downstream.
func (s *RecordStage) Process(f frame.Frame) (frame.Frame, error) {
	if err := s.append(f); err != nil {
		return f, errors.WrapProcessing(err, s.id, "process", "writing record")
	}
	return f, nil
}

func (s *RecordStage) append(f frame.Frame) error {
	if s.file == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	payload := encodeRecord(f)
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], recordMagic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))

	if _, err := s.writer.Write(header); err != nil {
		return err
	}
	if _, err := s.writer.Write(payload); err != nil {
		return err
	}
	s.written += int64(len(header) + len(payload))

	if limit := s.maxSize.Load(); limit > 0 && s.written >= limit {
		return s.rotate()
	}
	return nil
}

func (s *RecordStage) open() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	s.file = file
	s.writer = bufio.NewWriter(file)
	s.written = 0
	return nil
}

// rotate closes the current log, keeps it as a single .old generation and
// starts a fresh file.
func (s *RecordStage) rotate() error {
	if err := s.closeFile(); err != nil {
		return err
	}
	if err := os.Rename(s.path, s.path+".old"); err != nil {
		return err
	}
	s.logger.Info("record log rotated", "path", s.path)
	return s.open()
}

func (s *RecordStage) closeFile() error {
	if s.file == nil {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.file = nil
	s.writer = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Reconfigure applies a new size limit in place; a path change moves the
// stage's external resource and requires a rebuild.
func (s *RecordStage) Reconfigure(params map[string]any) (Outcome, error) {
	if raw, ok := params["path"]; ok {
		path, okStr := raw.(string)
		if !okStr {
			return OutcomeError, paramError("path", "string", raw)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(s.path), filepath.Base(path))
		}
		if path != s.path {
			return OutcomeNotApplicable, nil
		}
	}

	maxSize, err := OptionalIntParam(params, "max_size_bytes", int(s.maxSize.Load()))
	if err != nil {
		return OutcomeError, err
	}
	if maxSize < 0 {
		return OutcomeError, errors.WrapValidation(
			fmt.Errorf("%w: max_size_bytes must not be negative", errors.ErrInvalidConfig),
			s.id, "update", "checking size limit")
	}

	s.maxSize.Store(int64(maxSize))
	return OutcomeApplied, nil
}

// Reset flushes buffered records so a paused pipeline leaves a consistent
// file behind.
func (s *RecordStage) Reset() {
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			s.logger.Warn("record flush failed", "error", err)
		}
	}
}

// Flush closes the log file. Called on graph teardown.
func (s *RecordStage) Flush() error {
	return s.closeFile()
}

// encodeRecord serializes one frame: sequence, timestamp, sample rate,
// shape tag, per-channel sample counts and little-endian float32 samples.
func encodeRecord(f frame.Frame) []byte {
	var buf bytes.Buffer

	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], f.Sequence)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(f.Timestamp.UnixNano()))
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint32(scratch[:4], f.SampleRate)
	buf.Write(scratch[:4])
	buf.WriteByte(byte(f.Shape))

	writeSamples := func(samples []float32) {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(samples)))
		buf.Write(scratch[:4])
		for _, s := range samples {
			binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(s))
			buf.Write(scratch[:4])
		}
	}

	if f.Shape == frame.ShapeDualChannel {
		writeSamples(f.ChannelA)
		writeSamples(f.ChannelB)
	} else {
		writeSamples(f.Samples)
	}
	return buf.Bytes()
}

// DecodeRecord parses one record payload produced by encodeRecord. Used
// by tests and offline tooling.
func DecodeRecord(payload []byte) (frame.Frame, error) {
	const headerLen = 8 + 8 + 4 + 1
	if len(payload) < headerLen {
		return frame.Frame{}, fmt.Errorf("record too short: %d bytes", len(payload))
	}

	var f frame.Frame
	f.Sequence = binary.LittleEndian.Uint64(payload[0:8])
	f.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(payload[8:16]))).UTC()
	f.SampleRate = binary.LittleEndian.Uint32(payload[16:20])
	f.Shape = frame.Shape(payload[20])

	rest := payload[headerLen:]
	readSamples := func() ([]float32, error) {
		if len(rest) < 4 {
			return nil, fmt.Errorf("truncated sample count")
		}
		n := int(binary.LittleEndian.Uint32(rest[:4]))
		rest = rest[4:]
		if len(rest) < n*4 {
			return nil, fmt.Errorf("truncated samples: want %d, have %d bytes", n*4, len(rest))
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(rest[i*4 : i*4+4]))
		}
		rest = rest[n*4:]
		return out, nil
	}

	var err error
	if f.Shape == frame.ShapeDualChannel {
		if f.ChannelA, err = readSamples(); err != nil {
			return frame.Frame{}, err
		}
		if f.ChannelB, err = readSamples(); err != nil {
			return frame.Frame{}, err
		}
	} else {
		if f.Samples, err = readSamples(); err != nil {
			return frame.Frame{}, err
		}
	}
	return f, nil
}
