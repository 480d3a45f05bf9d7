package audio

import "encoding/binary"

// The concierge runs two fixed-rate audio legs: the microphone leg captured at
// 16kHz and the agent playback leg delivered at 24kHz. Both are mono PCM16LE
// on the wire.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000

	// CaptureFrameSamples is the per-tick capture buffer size. At 16kHz this
	// is roughly 256ms of audio per frame.
	CaptureFrameSamples = 4096
)

// CaptureMimeType tags outbound microphone frames on the wire.
const CaptureMimeType = "audio/pcm;rate=16000"

// Float32ToPCM16LE converts normalized float samples to little-endian PCM16
// bytes. Samples outside [-1, 1] clip to the int16 range.
func Float32ToPCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16LEToFloat32 converts little-endian PCM16 bytes to normalized float
// samples in [-1, 1). A trailing odd byte is ignored.
func PCM16LEToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// displayLevelScale maps mean absolute amplitude onto the 0-100 display range.
// Normal speech sits well below full scale, so the meter is deliberately hot.
const displayLevelScale = 500

// DisplayLevel computes the coarse loudness of one capture frame for the
// waveform visualization: mean absolute amplitude scaled linearly and capped
// at 100. A silent frame reads 0; a full-scale frame pins the meter.
func DisplayLevel(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	avg := sum / float64(len(samples))
	level := avg * displayLevelScale
	if level > 100 {
		return 100
	}
	return level
}

// Duration returns the playback duration in seconds of sampleCount mono
// samples at the given rate.
func Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate)
}
