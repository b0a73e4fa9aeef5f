package audio

import (
	"errors"
	"io"
	"os"
)

const defaultChunkSize = 4096

// pumpChunks reads r until EOF and hands each read to deliver in order. deliver owns
// the slice it receives. A clean EOF or a closed pipe returns nil.
func pumpChunks(r io.Reader, chunkSize int, deliver func([]byte)) error {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			deliver(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
