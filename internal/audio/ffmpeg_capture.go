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

	"fieldmic/internal/domain"
	"fieldmic/internal/logging"
	"fieldmic/internal/ports"
)

// CaptureOptions configures FFMPEGCapture.
type CaptureOptions struct {
	Command   string
	ChunkSize int
	FFTSize   int
	Logger    logging.Logger
	// StartupGrace is how long ffmpeg must survive before the device counts as opened.
	StartupGrace time.Duration
}

// FFMPEGCapture opens microphone inputs through ffmpeg and encodes them with a second
// ffmpeg process fed from the captured PCM.
type FFMPEGCapture struct {
	command      string
	chunkSize    int
	fftSize      int
	startupGrace time.Duration
	logger       logging.Logger

	probeMu  sync.Mutex
	encoders map[string]bool
}

func NewFFMPEGCapture(opts CaptureOptions) *FFMPEGCapture {
	if opts.Command == "" {
		opts.Command = "ffmpeg"
	}
	if opts.ChunkSize < 256 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.FFTSize <= 0 {
		opts.FFTSize = defaultFFTSize
	}
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &FFMPEGCapture{
		command:      opts.Command,
		chunkSize:    opts.ChunkSize,
		fftSize:      opts.FFTSize,
		startupGrace: opts.StartupGrace,
		logger:       opts.Logger,
	}
}

// Open starts capturing raw PCM from the configured input. The returned handle holds the
// device until Release.
func (c *FFMPEGCapture) Open(ctx context.Context, constraints ports.Constraints) (ports.DeviceHandle, error) {
	constraints = withCaptureDefaults(constraints)
	args := c.captureArgs(constraints)

	cmd := exec.Command(c.command, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", domain.ErrDeviceUnavailable, err)
	}

	device := &ffmpegDevice{
		capture:     c,
		constraints: constraints,
		analyser:    NewAnalyser(c.fftSize, constraints.Channels),
		stderr:      stderr,
		process:     cmd.Process,
		exited:      make(chan struct{}),
		lost:        make(chan error, 1),
	}
	go device.run(cmd, stdout)

	select {
	case <-device.exited:
		return nil, classifyCaptureError(normalizeExitErr(device.exitErr), stderr.String())
	case <-ctx.Done():
		_ = device.Release()
		return nil, ctx.Err()
	case <-time.After(c.startupGrace):
	}

	c.logger.Infof("capture device opened format=%s device=%s rate=%d channels=%d",
		constraints.InputFormat, constraints.InputDevice, constraints.SampleRate, constraints.Channels)
	return device, nil
}

func withCaptureDefaults(c ports.Constraints) ports.Constraints {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	return c
}

func (c *FFMPEGCapture) captureArgs(constraints ports.Constraints) []string {
	device := constraints.InputDevice
	if constraints.EchoCancellation {
		if constraints.EchoCancelSource != "" {
			device = constraints.EchoCancelSource
		} else {
			c.logger.Warnf("echo cancellation requested without an echo-cancel source; capturing %q directly", device)
		}
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", constraints.InputFormat,
		"-i", device,
	}
	if constraints.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	return append(args,
		"-ac", strconv.Itoa(constraints.Channels),
		"-ar", strconv.Itoa(constraints.SampleRate),
		"-f", "s16le",
		"-",
	)
}

type ffmpegDevice struct {
	capture     *FFMPEGCapture
	constraints ports.Constraints
	analyser    *Analyser

	stderr  *bytes.Buffer
	process *os.Process

	exited  chan struct{}
	exitErr error
	lost    chan error

	mu       sync.Mutex
	sink     io.Writer
	released bool

	releaseOnce sync.Once
	releaseErr  error
}

func (d *ffmpegDevice) run(cmd *exec.Cmd, stdout io.Reader) {
	pumpErr := pumpChunks(stdout, d.capture.chunkSize, d.deliver)
	d.exitErr = cmd.Wait()
	if d.exitErr == nil && pumpErr != nil {
		d.exitErr = pumpErr
	}
	close(d.exited)

	d.mu.Lock()
	released := d.released
	d.mu.Unlock()
	if released {
		return
	}
	d.lost <- classifyCaptureError(normalizeExitErr(d.exitErr), d.stderr.String())
}

func (d *ffmpegDevice) deliver(chunk []byte) {
	_, _ = d.analyser.Write(chunk)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sink != nil {
		_, _ = d.sink.Write(chunk)
	}
}

func (d *ffmpegDevice) FrequencyData(dst []byte) int {
	return d.analyser.FrequencyData(dst)
}

func (d *ffmpegDevice) BeginEncoding(ctx context.Context, opts ports.EncodingOptions, onChunk ports.ChunkFunc) (ports.EncoderSession, error) {
	return d.capture.startEncoder(ctx, d, opts, onChunk)
}

func (d *ffmpegDevice) Lost() <-chan error {
	return d.lost
}

func (d *ffmpegDevice) attachSink(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("%w: device already released", domain.ErrDeviceUnavailable)
	}
	if d.sink != nil {
		return errors.New("an encoder is already attached to this device")
	}
	d.sink = w
	return nil
}

func (d *ffmpegDevice) detachSink() {
	d.mu.Lock()
	d.sink = nil
	d.mu.Unlock()
}

func (d *ffmpegDevice) Release() error {
	d.releaseOnce.Do(func() {
		d.mu.Lock()
		d.released = true
		d.sink = nil
		d.mu.Unlock()

		if d.process != nil {
			_ = d.process.Signal(os.Interrupt)
		}

		select {
		case <-d.exited:
		case <-time.After(1200 * time.Millisecond):
			if d.process != nil {
				_ = d.process.Kill()
			}
			<-d.exited
		}

		d.releaseErr = normalizeExitErr(d.exitErr)
		if d.releaseErr != nil && d.stderr.Len() > 0 {
			d.releaseErr = fmt.Errorf("%w: %s", d.releaseErr, stringsTrimSpaceSafe(d.stderr.String()))
		}
		d.analyser.Reset()
	})
	return d.releaseErr
}

// normalizeExitErr drops plain non-zero exits, which are expected after a signal.
func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
