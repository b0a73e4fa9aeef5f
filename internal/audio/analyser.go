package audio

import (
	"encoding/binary"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	defaultFFTSize        = 32
	defaultSmoothing      = 0.8
	defaultMinDecibels    = -100.0
	defaultMaxDecibels    = -30.0
	maxByteMagnitude      = 255.0
	bytesPerSample        = 2
	int16FullScale        = 32768.0
	minimumAnalyserFFTLen = 32
)

// Analyser keeps the most recent PCM window of a live input and renders it as byte
// magnitudes per frequency bin, the way browser analyser nodes do.
type Analyser struct {
	mu       sync.Mutex
	fftSize  int
	channels int
	ring     []float64
	pos      int
	smoothed []float64

	fft     *fourier.FFT
	scratch []float64
	coeffs  []complex128
	partial []byte
}

// NewAnalyser creates an analyser for interleaved s16le input. fftSize is rounded up
// to a power of two.
func NewAnalyser(fftSize, channels int) *Analyser {
	if fftSize < minimumAnalyserFFTLen {
		fftSize = defaultFFTSize
	}
	fftSize = nextPowerOfTwo(fftSize)
	if channels <= 0 {
		channels = 1
	}
	return &Analyser{
		fftSize:  fftSize,
		channels: channels,
		ring:     make([]float64, fftSize),
		smoothed: make([]float64, fftSize/2),
		fft:      fourier.NewFFT(fftSize),
		scratch:  make([]float64, fftSize),
		coeffs:   make([]complex128, fftSize/2+1),
	}
}

// BinCount is the number of frequency bins produced per snapshot.
func (a *Analyser) BinCount() int {
	return a.fftSize / 2
}

// Write appends PCM bytes. Multi-channel frames are downmixed.
func (a *Analyser) Write(pcm []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	frameBytes := bytesPerSample * a.channels
	data := pcm
	if len(a.partial) > 0 {
		data = append(append([]byte(nil), a.partial...), pcm...)
		a.partial = a.partial[:0]
	}

	for len(data) >= frameBytes {
		var sum float64
		for ch := 0; ch < a.channels; ch++ {
			sample := int16(binary.LittleEndian.Uint16(data[ch*bytesPerSample:]))
			sum += float64(sample) / int16FullScale
		}
		a.ring[a.pos] = sum / float64(a.channels)
		a.pos = (a.pos + 1) % a.fftSize
		data = data[frameBytes:]
	}
	if len(data) > 0 {
		a.partial = append(a.partial, data...)
	}
	return len(pcm), nil
}

// FrequencyData fills dst with smoothed byte magnitudes and returns the bins written.
func (a *Analyser) FrequencyData(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(dst)
	if bins := a.fftSize / 2; n > bins {
		n = bins
	}
	if n == 0 {
		return 0
	}

	// Oldest sample first.
	copy(a.scratch, a.ring[a.pos:])
	copy(a.scratch[a.fftSize-a.pos:], a.ring[:a.pos])
	window.Blackman(a.scratch)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.scratch)

	for k := 0; k < a.fftSize/2; k++ {
		re, im := real(a.coeffs[k]), imag(a.coeffs[k])
		magnitude := math.Sqrt(re*re+im*im) / float64(a.fftSize)
		a.smoothed[k] = defaultSmoothing*a.smoothed[k] + (1-defaultSmoothing)*magnitude
	}

	for k := 0; k < n; k++ {
		dst[k] = toByteMagnitude(a.smoothed[k])
	}
	return n
}

// Reset clears buffered samples and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.ring {
		a.ring[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.pos = 0
	a.partial = a.partial[:0]
}

func toByteMagnitude(linear float64) byte {
	if linear <= 0 {
		return 0
	}
	db := 20 * math.Log10(linear)
	scaled := maxByteMagnitude * (db - defaultMinDecibels) / (defaultMaxDecibels - defaultMinDecibels)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= maxByteMagnitude:
		return byte(maxByteMagnitude)
	default:
		return byte(scaled)
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
