package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"meetbot/internal/ports"
)

// FFMPEGInput captures PCM audio through an ffmpeg subprocess. ffmpeg
// cannot enumerate devices portably, so the configured device is reported
// as the only input.
type FFMPEGInput struct {
	command     string
	inputFormat string
	device      string
	channels    int
	startGrace  time.Duration
}

func NewFFMPEGInput(command, inputFormat, device string, channels int) *FFMPEGInput {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if device == "" {
		device = "default"
	}
	if channels <= 0 {
		channels = 2
	}
	return &FFMPEGInput{
		command:     command,
		inputFormat: inputFormat,
		device:      device,
		channels:    channels,
		startGrace:  250 * time.Millisecond,
	}
}

func (c *FFMPEGInput) Devices() ([]ports.DeviceInfo, error) {
	return []ports.DeviceInfo{{Name: c.device, MaxInputChannels: c.channels}}, nil
}

func (c *FFMPEGInput) Open(ctx context.Context, format ports.StreamFormat) (ports.AudioStream, error) {
	if format.Channels <= 0 || format.SampleRate <= 0 || format.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid stream format %+v", format)
	}
	device := format.Device
	if device == "" {
		device = c.device
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.inputFormat,
		"-i", device,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-",
	}

	// The process outlives ctx; it is bound to Stop/Close instead.
	cmd := exec.Command(c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// A plain pipe instead of StdoutPipe: Wait must not close the read end
	// while samples ffmpeg flushed on exit are still buffered.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	_ = stdoutW.Close()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		_ = stdout.Close()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		_ = stdout.Close()
		return nil, ctx.Err()
	case <-time.After(c.startGrace):
	}

	return &ffmpegStream{
		stdout:    stdout,
		stderr:    &stderr,
		process:   cmd.Process,
		waitErr:   waitErr,
		frameSize: format.Channels * 2,
	}, nil
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process   *os.Process
	waitErr   <-chan error
	frameSize int

	stopOnce sync.Once
	stopErr  error
}

// Read returns exactly blockSize frames unless the process has exited.
func (s *ffmpegStream) Read(blockSize int) ([]byte, error) {
	buf := make([]byte, blockSize*s.frameSize)
	n, err := io.ReadFull(s.stdout, buf)
	if err != nil {
		if n > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
			return buf[:n-n%s.frameSize], nil
		}
		return nil, err
	}
	return buf, nil
}

func (s *ffmpegStream) Close() error {
	return s.Stop()
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
