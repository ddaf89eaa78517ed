// Package pcm converts between float32 sample windows and the 16-bit
// little-endian PCM blobs exchanged with the voice session.
//
// Encoding quantizes each sample to int16 after clamping to [-1, 1]; it
// never resamples and never fails. Decoding is the inverse and is used for
// the response audio streamed back by the model.
package pcm
