package artifact

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// PCMReader streams the raw payload of a recording.
type PCMReader struct {
	io.Reader
	Format Format
	Length int64

	file *os.File
}

// OpenPCM opens a WAV artifact positioned at the start of its PCM payload.
func OpenPCM(path string) (*PCMReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}
	if dec.BitDepth != SampleWidthBytes*8 {
		_ = f.Close()
		return nil, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seek to pcm payload: %w", err)
	}

	return &PCMReader{
		Reader: io.LimitReader(dec.PCMChunk, dec.PCMLen()),
		Format: Format{Channels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
		Length: dec.PCMLen(),
		file:   f,
	}, nil
}

func (r *PCMReader) Close() error {
	return r.file.Close()
}
