package usecase

import (
	"context"
	"fmt"
	"sync"

	"fieldmic/internal/domain"
	"fieldmic/internal/ports"
)

// captureChannel owns one opened device and the encoder fed from it. Chunks are kept in
// arrival order until the channel is finished or discarded.
type captureChannel struct {
	device  ports.DeviceHandle
	encoder ports.EncoderSession

	mu        sync.Mutex
	chunks    [][]byte
	discarded bool

	releaseOnce sync.Once
	releaseErr  error
}

func openCaptureChannel(ctx context.Context, capture ports.AudioCapture, constraints ports.Constraints) (*captureChannel, error) {
	device, err := capture.Open(ctx, constraints)
	if err != nil {
		return nil, err
	}
	return &captureChannel{device: device}, nil
}

func (c *captureChannel) begin(ctx context.Context, opts ports.EncodingOptions, onChunk ports.ChunkFunc) error {
	encoder, err := c.device.BeginEncoding(ctx, opts, onChunk)
	if err != nil {
		return err
	}
	c.encoder = encoder
	return nil
}

func (c *captureChannel) append(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discarded || len(chunk) == 0 {
		return
	}
	c.chunks = append(c.chunks, chunk)
}

func (c *captureChannel) encoderFailed() <-chan error {
	if c.encoder == nil {
		return nil
	}
	return c.encoder.Failed()
}

// finish flushes the encoder and concatenates every chunk received so far.
func (c *captureChannel) finish() (domain.Artifact, int, error) {
	if c.encoder == nil {
		return domain.Artifact{}, 0, fmt.Errorf("%w: encoder was never started", domain.ErrEncoderFailed)
	}
	if err := c.encoder.Stop(); err != nil {
		c.discard()
		return domain.Artifact{}, 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discarded {
		return domain.Artifact{}, 0, fmt.Errorf("%w: recording was discarded", domain.ErrEncoderFailed)
	}
	return assembleArtifact(c.encoder.MimeType(), c.chunks), len(c.chunks), nil
}

// discard stops the encoder, if any, and drops accumulated chunks.
func (c *captureChannel) discard() {
	c.mu.Lock()
	c.discarded = true
	c.chunks = nil
	c.mu.Unlock()

	if c.encoder != nil {
		_ = c.encoder.Stop()
	}
}

func (c *captureChannel) release() error {
	c.releaseOnce.Do(func() {
		c.releaseErr = c.device.Release()
	})
	return c.releaseErr
}

func assembleArtifact(mimeType string, chunks [][]byte) domain.Artifact {
	size := 0
	for _, chunk := range chunks {
		size += len(chunk)
	}
	data := make([]byte, 0, size)
	for _, chunk := range chunks {
		data = append(data, chunk...)
	}
	return domain.Artifact{MimeType: mimeType, Data: data}
}
