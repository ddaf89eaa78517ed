package audioio

import "github.com/teslashibe/go-coach/pkg/pcm"

// Resample converts audio from one sample rate to another using linear interpolation.
// This is a simple resampler suitable for speech audio.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return samples
	}

	if len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)

	if newLen == 0 {
		return []float32{}
	}

	result := make([]float32, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := samples[srcIdx]
			s2 := samples[srcIdx+1]
			result[i] = s1 + frac*(s2-s1)
		}
	}

	return result
}

// ResampleChunk returns the chunk converted to mono at the given rate.
func ResampleChunk(chunk AudioChunk, toRate int) AudioChunk {
	mono := chunk.Mono()
	return AudioChunk{
		Samples:    Resample(mono, chunk.SampleRate, toRate),
		SampleRate: toRate,
		Channels:   1,
	}
}

// ChunkFromBytes builds a chunk from raw PCM16 little-endian bytes.
func ChunkFromBytes(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{
		Samples:    pcm.DecodeBytes(data),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Bytes returns the chunk as raw PCM16 little-endian bytes.
func (c *AudioChunk) Bytes() []byte {
	return pcm.EncodeBytes(c.Samples)
}

// MonoToStereo duplicates mono samples to stereo.
func MonoToStereo(samples []float32) []float32 {
	stereo := make([]float32, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}
	return stereo
}

// Downmix averages interleaved multi-channel samples to mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	mono := make([]float32, len(samples)/channels)
	for i := range mono {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
