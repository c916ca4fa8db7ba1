package compression

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/protectedauction/core"
)

func allCompressors(t *testing.T) []Compressor {
	t.Helper()
	compressors := make([]Compressor, 0, len(registry))
	for _, version := range SupportedVersions() {
		compressor, err := New(version)
		assert.NoError(t, err)
		compressors = append(compressors, compressor)
	}
	return compressors
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	assert.NoError(t, err)
	return data
}

func TestNew_UnknownVersion(t *testing.T) {
	for _, version := range []uint8{0, 1, 5, 31, 255} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			compressor, err := New(version)
			check.Nil(t, compressor)
			check.True(t, errors.Is(err, core.ErrConfiguration))
		})
	}
}

func TestNew_ReportsVersion(t *testing.T) {
	for _, version := range []uint8{VersionGzip, VersionZstd, VersionLZ4} {
		compressor, err := New(version)
		assert.NoError(t, err)
		check.Equal(t, version, compressor.Version())
	}
}

func TestVersionName(t *testing.T) {
	check.Equal(t, "gzip", VersionName(VersionGzip))
	check.Equal(t, "zstd", VersionName(VersionZstd))
	check.Equal(t, "lz4", VersionName(VersionLZ4))
	check.Equal(t, "unknown(9)", VersionName(9))
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":        {},
		"single byte":  {0x42},
		"text":         []byte("shoes shoes shoes shirts shirts hats"),
		"repetitive":   bytes.Repeat([]byte("custom-audience|"), 4096),
		"random 64KiB": randomBytes(t, 64*1024),
	}

	for _, compressor := range allCompressors(t) {
		for name, input := range inputs {
			t.Run(VersionName(compressor.Version())+"/"+name, func(t *testing.T) {
				compressed, err := compressor.Compress(NewUncompressedData(input))
				assert.NoError(t, err)
				check.True(t, compressed.Len() > 0)

				decompressed, err := compressor.Decompress(compressed)
				assert.NoError(t, err)
				check.True(t, bytes.Equal(input, decompressed.Bytes()))
				check.True(t, decompressed.Equal(NewUncompressedData(input)))
			})
		}
	}
}

func TestCompress_Deterministic(t *testing.T) {
	input := bytes.Repeat([]byte("deterministic buyer input "), 512)

	for _, compressor := range allCompressors(t) {
		t.Run(VersionName(compressor.Version()), func(t *testing.T) {
			first, err := compressor.Compress(NewUncompressedData(input))
			assert.NoError(t, err)
			second, err := compressor.Compress(NewUncompressedData(input))
			assert.NoError(t, err)
			check.True(t, first.Equal(second))
		})
	}
}

func TestCompress_ShrinksRepetitiveData(t *testing.T) {
	input := bytes.Repeat([]byte("a"), 16*1024)

	for _, compressor := range allCompressors(t) {
		t.Run(VersionName(compressor.Version()), func(t *testing.T) {
			compressed, err := compressor.Compress(NewUncompressedData(input))
			assert.NoError(t, err)
			check.True(t, compressed.Len() < len(input)/4)
		})
	}
}

func TestDecompress_Truncated(t *testing.T) {
	input := bytes.Repeat([]byte("truncation should be detected "), 256)

	for _, compressor := range allCompressors(t) {
		t.Run(VersionName(compressor.Version()), func(t *testing.T) {
			compressed, err := compressor.Compress(NewUncompressedData(input))
			assert.NoError(t, err)

			raw := compressed.Bytes()
			truncated := NewCompressedData(raw[:len(raw)/2])

			_, err = compressor.Decompress(truncated)
			check.True(t, errors.Is(err, core.ErrDecode))
		})
	}
}

func TestDecompress_Corrupt(t *testing.T) {
	garbage := NewCompressedData([]byte("this was never compressed by anything"))

	for _, compressor := range allCompressors(t) {
		t.Run(VersionName(compressor.Version()), func(t *testing.T) {
			_, err := compressor.Decompress(garbage)
			check.True(t, errors.Is(err, core.ErrDecode))
		})
	}
}

func TestDecompress_Empty(t *testing.T) {
	for _, compressor := range allCompressors(t) {
		t.Run(VersionName(compressor.Version()), func(t *testing.T) {
			_, err := compressor.Decompress(NewCompressedData(nil))
			check.True(t, errors.Is(err, core.ErrDecode))
		})
	}
}

func TestConcurrentUse(t *testing.T) {
	for _, compressor := range allCompressors(t) {
		t.Run(VersionName(compressor.Version()), func(t *testing.T) {
			var wg sync.WaitGroup
			failures := make(chan string, 16)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					input := bytes.Repeat([]byte(fmt.Sprintf("buyer-%d|", i)), 200)
					compressed, err := compressor.Compress(NewUncompressedData(input))
					if err != nil {
						failures <- err.Error()
						return
					}
					decompressed, err := compressor.Decompress(compressed)
					if err != nil || !bytes.Equal(input, decompressed.Bytes()) {
						failures <- fmt.Sprintf("round trip %d failed: %v", i, err)
					}
				}(i)
			}
			wg.Wait()
			close(failures)
			for failure := range failures {
				t.Error(failure)
			}
		})
	}
}
