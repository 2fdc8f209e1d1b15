package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func wavBytes(t *testing.T, samples ...int16) []byte {
	t.Helper()
	data, err := EncodeWAV(samples, SampleRate)
	require.NoError(t, err)
	return data
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Waveform
		wantErr error
	}{
		{
			name: "headerless pcm",
			data: []byte{0x00, 0x40, 0x00, 0xC0},
			want: Waveform{0.5, -0.5},
		},
		{
			name: "extremes",
			data: pcmBytes(32767, -32768, 0, 1),
			want: Waveform{32767.0 / 32768.0, -1.0, 0, 1.0 / 32768.0},
		},
		{
			name: "wav header skipped",
			data: wavBytes(t, 16384, -8192),
			want: Waveform{0.5, -0.25},
		},
		{
			name:    "empty input",
			data:    nil,
			wantErr: ErrFormat,
		},
		{
			name:    "odd headerless size",
			data:    []byte{0x01, 0x02, 0x03},
			wantErr: ErrFormat,
		},
		{
			name:    "header only",
			data:    wavBytes(t, 1)[:DefaultHeaderSize],
			wantErr: ErrFormat,
		},
		{
			name:    "truncated header",
			data:    []byte("RIFF\x00\x00"),
			wantErr: ErrFormat,
		},
		{
			name:    "odd size after header",
			data:    append(wavBytes(t, 1), 0x7f),
			wantErr: ErrFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data, DefaultOptions())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSilentWAV(t *testing.T) {
	silence := make([]int16, 2*SampleRate)
	wf, err := Decode(wavBytes(t, silence...), DefaultOptions())
	require.NoError(t, err)

	require.Len(t, wf, 32000)
	for i, s := range wf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
	assert.Equal(t, 2*SampleRate, len(wf))
	assert.Equal(t, "2s", wf.Duration().String())
}

func TestDecodeOrderPreserving(t *testing.T) {
	samples := make([]int16, 1000)
	for i := range samples {
		samples[i] = int16(i*37 - 18000)
	}

	wf, err := Decode(pcmBytes(samples...), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, wf, len(samples))
	for i, s := range samples {
		assert.Equal(t, float32(s)/32768.0, wf[i], "sample %d", i)
	}
}

func TestDecodeCustomOptions(t *testing.T) {
	data := append([]byte("RIFF"), make([]byte, 4)...)
	data = append(data, pcmBytes(100, -100)...)

	wf, err := Decode(data, Options{HeaderSize: 8, Divisor: 100})
	require.NoError(t, err)
	assert.Equal(t, Waveform{1, -1}, wf)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice.wav")
	require.NoError(t, os.WriteFile(path, wavBytes(t, 0, 8192), 0644))

	wf, err := Load(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Waveform{0, 0.25}, wf)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.wav"), DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type failingSource struct{}

func (failingSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(&failingReader{}), nil
}
func (failingSource) Name() string { return "failing" }

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestReadShortRead(t *testing.T) {
	_, err := Read(failingSource{}, DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestBytesSource(t *testing.T) {
	wf, err := Read(Bytes("mem", pcmBytes(-16384)), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Waveform{-0.5}, wf)
}

func TestIsWAV(t *testing.T) {
	assert.True(t, IsWAV([]byte("RIFF....")))
	assert.False(t, IsWAV([]byte("RIF")))
	assert.False(t, IsWAV([]byte("riff....")))
}
