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
	"strings"
	"sync"
	"time"

	"fieldmic/internal/domain"
	"fieldmic/internal/ports"
)

// Encoding pairs a container mime type with the ffmpeg encoder that produces it.
type Encoding struct {
	MimeType string
	Codec    string
}

// EncodingPreferences is tried in order; the first encoder ffmpeg offers wins.
var EncodingPreferences = []Encoding{
	{MimeType: "audio/webm;codecs=opus", Codec: "libopus"},
	{MimeType: "audio/webm", Codec: "libvorbis"},
}

func negotiateEncoding(available map[string]bool) (Encoding, error) {
	for _, candidate := range EncodingPreferences {
		if available[candidate.Codec] {
			return candidate, nil
		}
	}
	return Encoding{}, domain.ErrEncodingUnsupported
}

// parseEncoderList extracts audio encoder names from `ffmpeg -encoders` output.
func parseEncoderList(output string) map[string]bool {
	available := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags := fields[0]
		if len(flags) != 6 || flags[0] != 'A' {
			continue
		}
		available[fields[1]] = true
	}
	return available
}

// availableEncoders lists ffmpeg's audio encoders. Only a successful listing is kept, so a
// cancelled or failed probe is retried on the next start.
func (c *FFMPEGCapture) availableEncoders(ctx context.Context) (map[string]bool, error) {
	c.probeMu.Lock()
	defer c.probeMu.Unlock()
	if c.encoders != nil {
		return c.encoders, nil
	}

	out, err := exec.CommandContext(ctx, c.command, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list ffmpeg encoders: %w", err)
	}
	c.encoders = parseEncoderList(string(out))
	return c.encoders, nil
}

func (c *FFMPEGCapture) startEncoder(ctx context.Context, device *ffmpegDevice, opts ports.EncodingOptions, onChunk ports.ChunkFunc) (ports.EncoderSession, error) {
	if onChunk == nil {
		return nil, errors.New("chunk callback is required")
	}

	available, err := c.availableEncoders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncodingUnsupported, err)
	}
	encoding, err := negotiateEncoding(available)
	if err != nil {
		return nil, err
	}
	c.logger.Infof("negotiated encoding mime=%s codec=%s", encoding.MimeType, encoding.Codec)

	bitrate := opts.Bitrate
	if bitrate <= 0 {
		bitrate = 16000
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(device.constraints.SampleRate),
		"-ac", strconv.Itoa(device.constraints.Channels),
		"-i", "pipe:0",
		"-c:a", encoding.Codec,
		"-b:a", strconv.Itoa(bitrate),
		"-f", "webm",
		"pipe:1",
	}

	cmd := exec.Command(c.command, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start encoder: %v", domain.ErrEncoderFailed, err)
	}

	encoder := &ffmpegEncoder{
		device:   device,
		encoding: encoding,
		stdin:    stdin,
		stderr:   stderr,
		process:  cmd.Process,
		exited:   make(chan struct{}),
		failed:   make(chan error, 1),
	}
	// The reader runs before any PCM reaches the encoder, so the first chunk has a receiver.
	go encoder.run(cmd, stdout, c.chunkSize, onChunk)

	if err := device.attachSink(stdin); err != nil {
		_ = encoder.Stop()
		return nil, err
	}
	return encoder, nil
}

type ffmpegEncoder struct {
	device   *ffmpegDevice
	encoding Encoding
	stdin    io.WriteCloser
	stderr   *bytes.Buffer
	process  *os.Process

	exited  chan struct{}
	exitErr error
	failed  chan error

	mu       sync.Mutex
	stopping bool

	stopOnce sync.Once
	stopErr  error
}

func (e *ffmpegEncoder) run(cmd *exec.Cmd, stdout io.Reader, chunkSize int, onChunk ports.ChunkFunc) {
	pumpErr := pumpChunks(stdout, chunkSize, onChunk)
	e.exitErr = cmd.Wait()
	if e.exitErr == nil && pumpErr != nil {
		e.exitErr = pumpErr
	}
	close(e.exited)

	e.mu.Lock()
	stopping := e.stopping
	e.mu.Unlock()
	if stopping {
		return
	}
	e.failed <- e.failure("encoder exited while recording")
}

func (e *ffmpegEncoder) failure(reason string) error {
	detail := stringsTrimSpaceSafe(e.stderr.String())
	switch {
	case e.exitErr != nil && detail != "":
		return fmt.Errorf("%w: %s: %v: %s", domain.ErrEncoderFailed, reason, e.exitErr, detail)
	case e.exitErr != nil:
		return fmt.Errorf("%w: %s: %v", domain.ErrEncoderFailed, reason, e.exitErr)
	default:
		return fmt.Errorf("%w: %s", domain.ErrEncoderFailed, reason)
	}
}

func (e *ffmpegEncoder) MimeType() string {
	return e.encoding.MimeType
}

func (e *ffmpegEncoder) Failed() <-chan error {
	return e.failed
}

// Stop detaches the encoder from the device, closes its input and drains every
// remaining chunk through the callback before returning.
func (e *ffmpegEncoder) Stop() error {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopping = true
		e.mu.Unlock()

		e.device.detachSink()
		_ = e.stdin.Close()

		select {
		case <-e.exited:
		case <-time.After(5 * time.Second):
			if e.process != nil {
				_ = e.process.Kill()
			}
			<-e.exited
		}

		if e.exitErr != nil {
			e.stopErr = e.failure("encoder did not finish cleanly")
		}
	})
	return e.stopErr
}
