package artifact

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleWidthBytes is the width of one PCM sample; capture is always int16.
const SampleWidthBytes = 2

const wavFormatPCM = 1

// Format describes the PCM layout of a recording.
type Format struct {
	Channels   int
	SampleRate int
}

// WriteWAV encodes the blocks into a PCM WAV container at path and returns
// the resulting file size.
func WriteWAV(path string, format Format, blocks [][]byte) (int64, error) {
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return 0, fmt.Errorf("invalid wav format: %d channels @ %d Hz", format.Channels, format.SampleRate)
	}
	if len(blocks) == 0 {
		return 0, errors.New("no audio blocks to encode")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create wav file: %w", err)
	}

	enc := wav.NewEncoder(f, format.SampleRate, SampleWidthBytes*8, format.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		SourceBitDepth: SampleWidthBytes * 8,
	}
	for _, block := range blocks {
		buf.Data = decodeSamples(block, buf.Data[:0])
		if len(buf.Data) == 0 {
			continue
		}
		if err := enc.Write(buf); err != nil {
			_ = enc.Close()
			_ = f.Close()
			return 0, fmt.Errorf("encode wav payload: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("finalize wav header: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close wav file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat wav file: %w", err)
	}
	return info.Size(), nil
}

// decodeSamples reads little-endian int16 samples; a trailing odd byte is dropped.
func decodeSamples(block []byte, dst []int) []int {
	for i := 0; i+1 < len(block); i += SampleWidthBytes {
		dst = append(dst, int(int16(binary.LittleEndian.Uint16(block[i:]))))
	}
	return dst
}

// PeakPercent returns the largest absolute sample of an int16 block as a
// percentage of full scale.
func PeakPercent(block []byte) float64 {
	peak := 0
	for i := 0; i+1 < len(block); i += SampleWidthBytes {
		sample := int(int16(binary.LittleEndian.Uint16(block[i:])))
		if sample < 0 {
			sample = -sample
		}
		if sample > peak {
			peak = sample
		}
	}
	return float64(peak) / 32768 * 100
}
