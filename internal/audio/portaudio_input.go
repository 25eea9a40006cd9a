package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"meetbot/internal/ports"
)

// PortAudioInput captures from local devices through PortAudio. Terminate
// must be called once the input is no longer used.
type PortAudioInput struct {
	mu         sync.Mutex
	terminated bool
}

func NewPortAudioInput() (*PortAudioInput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudioInput{}, nil
}

func (p *PortAudioInput) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return nil
	}
	p.terminated = true
	return portaudio.Terminate()
}

func (p *PortAudioInput) Devices() ([]ports.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	out := make([]ports.DeviceInfo, 0, len(devices))
	for _, device := range devices {
		out = append(out, ports.DeviceInfo{
			Name:              device.Name,
			MaxInputChannels:  device.MaxInputChannels,
			DefaultSampleRate: device.DefaultSampleRate,
		})
	}
	return out, nil
}

func (p *PortAudioInput) Open(_ context.Context, format ports.StreamFormat) (ports.AudioStream, error) {
	if format.Channels <= 0 || format.SampleRate <= 0 || format.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid stream format %+v", format)
	}
	device, err := p.lookup(format.Device)
	if err != nil {
		return nil, err
	}

	samples := make([]int16, format.BlockSize*format.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.Channels,
			Latency:  device.DefaultHighInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: format.BlockSize,
	}
	stream, err := portaudio.OpenStream(params, samples)
	if err != nil {
		return nil, fmt.Errorf("open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start portaudio stream: %w", err)
	}
	return &portaudioStream{stream: stream, samples: samples}, nil
}

func (p *PortAudioInput) lookup(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return device, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	for _, device := range devices {
		if device.Name == name && device.MaxInputChannels > 0 {
			return device, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

type portaudioStream struct {
	stream  *portaudio.Stream
	samples []int16

	stopOnce  sync.Once
	closeOnce sync.Once
}

// Read blocks for one buffer. Input overflow is tolerated and the block
// is still returned.
func (s *portaudioStream) Read(int) ([]byte, error) {
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	return samplesToBytes(s.samples), nil
}

func (s *portaudioStream) Stop() error {
	var err error
	s.stopOnce.Do(func() { err = s.stream.Stop() })
	return err
}

func (s *portaudioStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.stream.Close() })
	return err
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}
