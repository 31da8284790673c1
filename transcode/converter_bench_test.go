package transcode

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func benchmarkData() []byte {
	row := strings.Join([]string{
		strings.Repeat("x", 16),
		strings.Repeat("y", 32),
		strings.Repeat("z", 64),
		strings.Repeat("w", 128),
	}, "#|#") + "##//##"
	return []byte(strings.Repeat(row, 256))
}

func benchmarkConfig() Config {
	return Config{
		FieldDelimiter:  "#|#",
		RecordDelimiter: "##//##",
		Fields:          []string{"x", "z"},
		Include:         Mask{true, false, true},
	}
}

func BenchmarkConverter(b *testing.B) {
	data := benchmarkData()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	for i := 0; i < b.N; i++ {
		c, err := NewConverter(bytes.NewReader(data), benchmarkConfig())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := io.Copy(io.Discard, c); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConverterSmallPulls(b *testing.B) {
	data := benchmarkData()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	buf := make([]byte, 64)
	for i := 0; i < b.N; i++ {
		c, err := NewConverter(bytes.NewReader(data), benchmarkConfig())
		if err != nil {
			b.Fatal(err)
		}
		for {
			_, err := c.Read(buf)
			if err == io.EOF {
				break
			}
			if err != nil {
				b.Fatal(err)
			}
		}
	}
}
