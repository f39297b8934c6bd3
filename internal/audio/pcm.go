package audio

import (
	"encoding/binary"
	"math"
)

// FloatToPCM16 cuantiza muestras normalizadas a PCM16 little-endian,
// el formato de input_audio_buffer.append en sesiones realtime.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	putPCM16(out, samples)
	return out
}

// PCM16ToFloat convierte PCM16 little-endian a muestras en [-1, 1).
// Un byte final suelto se descarta.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

func putPCM16(dst []byte, samples []float32) {
	for i, v := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(quantize16(v)))
	}
}

func quantize16(v float32) int16 {
	s := math.Round(float64(clampUnit(v)) * 32768)
	if s > math.MaxInt16 {
		s = math.MaxInt16
	}
	if s < math.MinInt16 {
		s = math.MinInt16
	}
	return int16(s)
}
