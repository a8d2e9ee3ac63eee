package serialization

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/tt"
)

func sampleDense(t *testing.T) *dense.Tensor {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	x, err := dense.FromFunc(dense.Shape{3, 4, 5}, func([]int) float64 { return rng.NormFloat64() })
	require.NoError(t, err)
	return x
}

func sampleTT(t *testing.T) *tt.Tensor {
	t.Helper()
	x, err := tt.Random(dense.Shape{4, 3, 5, 2}, []int{2, 3, 2}, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	return x
}

func TestDenseRoundTrip(t *testing.T) {
	x := sampleDense(t)
	for _, codec := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(string(codec), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteDense(&buf, x, WriterOptions{
				Compression: codec,
				Metadata:    map[string]string{"source": "test"},
			}))

			got, header, err := ReadDense(&buf, ReaderOptions{})
			require.NoError(t, err)
			assert.Equal(t, x.Shape(), got.Shape())
			assert.Equal(t, x.Data(), got.Data())
			assert.Equal(t, "dense", header.Kind)
			assert.Equal(t, "test", header.Metadata["source"])
		})
	}
}

func TestTTRoundTrip(t *testing.T) {
	x := sampleTT(t)
	var buf bytes.Buffer
	require.NoError(t, WriteTT(&buf, x, WriterOptions{Compression: CompressionZSTD}))

	got, header, err := ReadTT(&buf, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 2, 1}, header.Ranks)
	assert.Equal(t, x.Dims(), got.Dims())
	assert.Equal(t, x.Ranks(), got.Ranks())
	for k := 0; k < x.Order(); k++ {
		assert.Equal(t, x.Core(k).Data, got.Core(k).Data)
	}
}

func TestCompression_FallsBackOnRandomBytes(t *testing.T) {
	raw := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(raw)

	for _, codec := range []Compression{CompressionLZ4, CompressionZSTD} {
		out, used, err := compress(codec, raw)
		require.NoError(t, err)
		assert.Equal(t, CompressionNone, used, string(codec))
		assert.Equal(t, raw, out)
	}
}

func TestInspect(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDense(&buf, sampleDense(t), WriterOptions{}))

	header, kind, err := Inspect(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, KindDense, kind)
	assert.Equal(t, []int{3, 4, 5}, header.Shape)
	assert.Equal(t, int64(60*8), header.RawSize)
	assert.Zero(t, binary.LittleEndian.Uint32(buf.Bytes()[8:12])&FlagCompressed)
}

func TestCompression_ShrinksStructuredData(t *testing.T) {
	x, err := dense.New(dense.Shape{64, 64}, make([]float64, 64*64))
	require.NoError(t, err)

	var plain, packed bytes.Buffer
	require.NoError(t, WriteDense(&plain, x, WriterOptions{}))
	require.NoError(t, WriteDense(&packed, x, WriterOptions{Compression: CompressionLZ4}))
	assert.Less(t, packed.Len(), plain.Len()/2)

	got, header, err := ReadDense(&packed, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "lz4", header.Compression)
	assert.Equal(t, x.Data(), got.Data())
}

func TestRead_FailsLoudly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDense(&buf, sampleDense(t), WriterOptions{}))
	valid := buf.Bytes()

	corrupt := func(f func(b []byte)) []byte {
		b := bytes.Clone(valid)
		f(b)
		return b
	}

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"magic", corrupt(func(b []byte) { copy(b, "XXXX") }), ErrInvalidMagic},
		{"version", corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[4:8], 99) }), ErrUnsupportedVersion},
		{"checksum", corrupt(func(b []byte) { b[len(b)-1] ^= 0xff }), ErrChecksumMismatch},
		{"kind", corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[12:16], uint32(KindTT)) }), ErrKindMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, _, err := ReadDense(bytes.NewReader(tt.data), ReaderOptions{})
			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, x)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		_, _, err := ReadDense(bytes.NewReader(valid[:len(valid)-8]), ReaderOptions{})
		assert.Error(t, err)
	})
}

func TestRead_WrongReader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTT(&buf, sampleTT(t), WriterOptions{}))
	_, _, err := ReadDense(&buf, ReaderOptions{})
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestRead_ExpectShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDense(&buf, sampleDense(t), WriterOptions{}))
	_, _, err := ReadDense(&buf, ReaderOptions{ExpectShape: dense.Shape{3, 4, 6}})
	assert.ErrorIs(t, err, dense.ErrShapeMismatch)
}

func TestValidateHeader(t *testing.T) {
	good := func() *Header {
		return &Header{
			FormatVersion: FormatVersion,
			Kind:          "tt",
			Shape:         []int{2, 3},
			Ranks:         []int{1, 2, 1},
			Compression:   "none",
			RawSize:       (2*2 + 2*3) * 8,
		}
	}
	require.NoError(t, ValidateHeader(good(), KindTT, ValidationStrict))

	tests := []struct {
		name   string
		mutate func(h *Header)
	}{
		{"boundary rank", func(h *Header) { h.Ranks = []int{2, 2, 1} }},
		{"rank count", func(h *Header) { h.Ranks = []int{1, 1} }},
		{"raw size", func(h *Header) { h.RawSize++ }},
		{"zero dim", func(h *Header) { h.Shape = []int{0, 3} }},
		{"codec", func(h *Header) { h.Compression = "brotli" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := good()
			tt.mutate(h)
			var verr *ValidationError
			assert.ErrorAs(t, ValidateHeader(h, KindTT, ValidationStrict), &verr)
		})
	}

	h := good()
	h.RawSize = 0
	assert.NoError(t, ValidateHeader(h, KindTT, ValidationNormal))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("dense-0a1b.ttc"))
	for _, name := range []string{"", "../etc", "a/b", `a\b`, "a\x00b", string(make([]byte, MaxNameLen+1))} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, "%q", name)
	}
}

func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "exact.ttc")
	x := sampleTT(t)

	require.NoError(t, SaveFile(path, func(w io.Writer) error {
		return WriteTT(w, x, WriterOptions{})
	}))
	got, _, err := LoadTTFile(path, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, x.FullRanks(), got.FullRanks())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestReadTT_PayloadDisagreesWithRanks(t *testing.T) {
	tests := []struct {
		name   string
		values int
	}{
		{"short", 1},
		{"long", 9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Shape [2 2] with ranks [1 2 1] needs 2·2 + 2·2 = 8 values.
			var buf bytes.Buffer
			header := Header{Shape: []int{2, 2}, Ranks: []int{1, 2, 1}}
			require.NoError(t, writeObject(&buf, KindTT, header, make([]byte, tc.values*bytesPerElement), WriterOptions{}))

			var got *tt.Tensor
			var err error
			require.NotPanics(t, func() {
				got, _, err = ReadTT(bytes.NewReader(buf.Bytes()), ReaderOptions{ValidationLevel: ValidationNormal})
			})
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Nil(t, got)
		})
	}
}

func TestReadDense_PayloadDisagreesWithShape(t *testing.T) {
	var buf bytes.Buffer
	header := Header{Shape: []int{3, 4}}
	require.NoError(t, writeObject(&buf, KindDense, header, make([]byte, 11*bytesPerElement), WriterOptions{}))

	_, _, err := ReadDense(&buf, ReaderOptions{ValidationLevel: ValidationNormal})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRead_RejectsPayloadSizeBeforeAllocating(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDense(&buf, sampleDense(t), WriterOptions{}))

	huge := bytes.Clone(buf.Bytes())
	binary.LittleEndian.PutUint64(huge[24:32], 1<<50)
	_, _, err := ReadDense(bytes.NewReader(huge), ReaderOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payload_size", verr.Type)

	flagged := bytes.Clone(buf.Bytes())
	binary.LittleEndian.PutUint32(flagged[8:12], FlagCompressed)
	_, _, err = ReadDense(bytes.NewReader(flagged), ReaderOptions{})
	assert.ErrorAs(t, err, &verr)
}
