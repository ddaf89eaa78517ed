package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"
	"time"
)

// Sample rates used by the voice session.
const (
	DefaultInputRate  = 16000
	DefaultOutputRate = 24000
)

// MIMEBase is the media type for raw signed 16-bit little-endian PCM.
const MIMEBase = "audio/pcm"

// Scale is the quantization scale; one step is 1/Scale.
const Scale = 32767

// ErrNotPCM is returned when a blob's media type is not raw PCM.
var ErrNotPCM = errors.New("pcm: not an audio/pcm blob")

// MIMEType returns the descriptor for PCM at the given rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("%s;rate=%d", MIMEBase, rate)
}

// ParseRate extracts the rate parameter from a PCM media type.
// It returns fallback when the parameter is absent or malformed.
func ParseRate(mimeType string, fallback int) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}

// IsPCM reports whether mimeType names raw PCM audio.
func IsPCM(mimeType string) bool {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.HasPrefix(mimeType, MIMEBase)
	}
	return mt == MIMEBase
}

// Blob is an encoded PCM payload tagged with its media type.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the transport form of the payload.
func (b Blob) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// Rate returns the sample rate declared by the blob, or fallback.
func (b Blob) Rate(fallback int) int {
	return ParseRate(b.MIMEType, fallback)
}

// Samples returns the number of int16 samples in the blob.
func (b Blob) Samples() int {
	return len(b.Data) / 2
}

// Duration returns the playback length of the blob at its declared rate.
func (b Blob) Duration(fallbackRate int) time.Duration {
	return Duration(b.Samples(), b.Rate(fallbackRate))
}

// Duration returns how long n mono samples last at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Quantize converts one float sample to int16, clamping out-of-range
// values and mapping NaN to silence.
func Quantize(s float32) int16 {
	f := float64(s)
	switch {
	case math.IsNaN(f):
		return 0
	case f > 1:
		f = 1
	case f < -1:
		f = -1
	}
	return int16(math.Round(f * Scale))
}

// Dequantize converts one int16 sample back to [-1, 1].
func Dequantize(v int16) float32 {
	f := float32(v) / Scale
	if f < -1 {
		return -1
	}
	return f
}

// Encoder turns float sample windows into PCM blobs at a fixed rate.
type Encoder struct {
	rate     int
	mimeType string
}

// NewEncoder creates an encoder tagging blobs with the given rate.
func NewEncoder(rate int) *Encoder {
	if rate <= 0 {
		rate = DefaultInputRate
	}
	return &Encoder{rate: rate, mimeType: MIMEType(rate)}
}

// Rate returns the encoder's sample rate.
func (e *Encoder) Rate() int { return e.rate }

// MIMEType returns the descriptor attached to every blob.
func (e *Encoder) MIMEType() string { return e.mimeType }

// Encode quantizes samples into a little-endian PCM blob.
func (e *Encoder) Encode(samples []float32) Blob {
	return Blob{MIMEType: e.mimeType, Data: EncodeBytes(samples)}
}

// EncodeBytes quantizes samples into raw little-endian PCM16 bytes.
func EncodeBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(Quantize(s)))
	}
	return data
}

// DecodeBytes converts little-endian PCM16 bytes to float samples.
// A trailing odd byte is ignored.
func DecodeBytes(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = Dequantize(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples
}

// Decode converts a PCM blob to float samples.
func Decode(b Blob) ([]float32, error) {
	if b.MIMEType != "" && !IsPCM(b.MIMEType) {
		return nil, fmt.Errorf("%w: %s", ErrNotPCM, b.MIMEType)
	}
	return DecodeBytes(b.Data), nil
}

// RMS returns the root mean square of the window, in [0, 1] for
// in-range input.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		if math.IsNaN(f) {
			continue
		}
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
