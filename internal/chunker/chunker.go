// Package chunker splits a newline-delimited stream into bounded chunks that end
// on a record boundary.
//
// The carry from the previous chunk and the bytes read after it share one block,
// so no chunk is ever longer than the block size. When the block is full the bytes
// after its last newline are carried over to the next block, so a record is never
// divided between two chunks.
package chunker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultBlockSize is the number of bytes requested from the stream per read (512 KiB).
const DefaultBlockSize = 524288

// RecordTerminator ends every record in the stream.
const RecordTerminator = '\n'

// ErrRecordTooLarge is returned when a full block contains no record terminator,
// meaning a single record, terminator included, is longer than the block size.
var ErrRecordTooLarge = errors.New("record exceeds block size")

// Chunk is a group of complete records read from the stream.
type Chunk struct {
	Data []byte
	// Final is set on the chunk produced by the read that reached end of stream.
	Final bool
}

// Len returns the chunk size in bytes.
func (c Chunk) Len() int {
	return len(c.Data)
}

// Next fills a block of blockSize bytes with carry followed by bytes read from r,
// and returns the next chunk together with the carry to pass to the following call.
//
// A full block is truncated after its last record terminator. A short read marks
// the chunk final and leaves no carry. A full block without a terminator yields
// ErrRecordTooLarge; use NextSplit to emit such blocks unmodified instead. The
// chunk never exceeds blockSize bytes.
func Next(r io.Reader, blockSize int, carry []byte) (Chunk, []byte, error) {
	chunk, rest, _, err := next(r, blockSize, carry, false)
	return chunk, rest, err
}

// NextSplit behaves like Next but emits a full block without a terminator as-is,
// splitting the record it contains across two chunks.
func NextSplit(r io.Reader, blockSize int, carry []byte) (Chunk, []byte, error) {
	chunk, rest, _, err := next(r, blockSize, carry, true)
	return chunk, rest, err
}

func next(r io.Reader, blockSize int, carry []byte, split bool) (Chunk, []byte, int, error) {
	if blockSize <= 0 {
		return Chunk{}, carry, 0, fmt.Errorf("invalid block size %d", blockSize)
	}
	if len(carry) >= blockSize {
		return Chunk{}, carry, 0, fmt.Errorf("%w: carry of %d bytes fills the block", ErrRecordTooLarge, len(carry))
	}

	buf := make([]byte, blockSize)
	copy(buf, carry)
	n, err := io.ReadFull(r, buf[len(carry):])
	filled := len(carry) + n
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// short read: end of stream, everything read is emittable
		return Chunk{Data: buf[:filled], Final: true}, nil, n, nil
	case err != nil:
		return Chunk{}, carry, n, fmt.Errorf("read block: %w", err)
	}

	last := bytes.LastIndexByte(buf, RecordTerminator)
	if last < 0 {
		if !split {
			return Chunk{}, carry, n, fmt.Errorf("%w: no record terminator in %d bytes", ErrRecordTooLarge, blockSize)
		}
		return Chunk{Data: buf}, nil, n, nil
	}

	var rest []byte
	if last+1 < len(buf) {
		rest = append([]byte(nil), buf[last+1:]...)
	}
	return Chunk{Data: buf[:last+1]}, rest, n, nil
}

// Reader yields successive chunks from an underlying stream, keeping the carry
// between calls.
//
// Reader is not safe for concurrent use.
type Reader struct {
	r              io.Reader
	blockSize      int
	splitOversized bool

	carry     []byte
	done      bool
	bytesRead int64
}

// NewReader returns a Reader producing chunks of at most blockSize bytes from r.
func NewReader(r io.Reader, blockSize int) *Reader {
	return &Reader{r: r, blockSize: blockSize}
}

// SplitOversized makes the reader emit a block holding part of an oversized record
// instead of failing with ErrRecordTooLarge.
func (cr *Reader) SplitOversized(enable bool) {
	cr.splitOversized = enable
}

// Next returns the next chunk. After the final chunk has been returned, Next
// returns io.EOF without touching the stream.
func (cr *Reader) Next() (Chunk, error) {
	if cr.done {
		return Chunk{}, io.EOF
	}

	chunk, carry, n, err := next(cr.r, cr.blockSize, cr.carry, cr.splitOversized)
	cr.bytesRead += int64(n)
	if err != nil {
		cr.done = true
		return Chunk{}, err
	}

	cr.carry = carry
	cr.done = chunk.Final
	return chunk, nil
}

// BytesRead returns the number of bytes consumed from the stream so far.
func (cr *Reader) BytesRead() int64 {
	return cr.bytesRead
}
