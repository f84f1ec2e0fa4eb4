package chunker

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func benchmarkReader(b *testing.B, recordSize int) {
	input := []byte(strings.Repeat(strings.Repeat("x", recordSize-1)+"\n", 8*1024*1024/recordSize))
	b.SetBytes(int64(len(input)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		cr := NewReader(bytes.NewReader(input), DefaultBlockSize)
		for {
			c, err := cr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				b.Fatal(err)
			}
			if c.Final {
				break
			}
		}
	}
}

// BenchmarkReader_SmallRecords benchmarks chunking 100-byte records
func BenchmarkReader_SmallRecords(b *testing.B) {
	benchmarkReader(b, 100)
}

// BenchmarkReader_LargeRecords benchmarks chunking 64 KiB records
func BenchmarkReader_LargeRecords(b *testing.B) {
	benchmarkReader(b, 64*1024)
}
