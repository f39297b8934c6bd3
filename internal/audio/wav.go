package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatExtensible = 0xFFFE

	wavHeaderSize = 44
)

var (
	ErrNotWAV            = errors.New("wav: missing RIFF/WAVE header")
	ErrTruncated         = errors.New("wav: truncated data")
	ErrMissingData       = errors.New("wav: data chunk not found")
	ErrUnsupportedFormat = errors.New("wav: unsupported sample format")
)

// PCM son muestras intercaladas normalizadas a [-1, 1].
type PCM struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames devuelve la cantidad de muestras por canal.
func (p *PCM) Frames() int {
	if p == nil || p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration en segundos.
func (p *PCM) Duration() float64 {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// Mono promedia los canales de cada frame.
func (p *PCM) Mono() []float32 {
	if p == nil {
		return nil
	}
	if p.Channels <= 1 {
		return p.Samples
	}
	frames := p.Frames()
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < p.Channels; ch++ {
			sum += p.Samples[i*p.Channels+ch]
		}
		out[i] = sum / float32(p.Channels)
	}
	return out
}

type wavFmt struct {
	tag        uint16
	subFormat  uint16
	channels   int
	sampleRate int
	bits       int
}

// DecodeWAV parsea un archivo RIFF/WAVE con chunks en cualquier orden.
// Soporta PCM entero de 16/24/32 bits y float IEEE de 32 bits, incluido
// WAVE_FORMAT_EXTENSIBLE.
func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) < 12 {
		return nil, ErrTruncated
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		format  *wavFmt
		payload []byte
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if size > int64(len(data)-pos) {
			return nil, fmt.Errorf("%w: chunk %q declares %d bytes", ErrTruncated, id, size)
		}
		chunk := data[pos : pos+int(size)]

		switch id {
		case "fmt ":
			f, err := parseFmt(chunk)
			if err != nil {
				return nil, err
			}
			format = f
		case "data":
			payload = chunk
		}
		if payload != nil {
			break
		}
		// los chunks de tamaño impar llevan un byte de relleno
		pos += int(size) + int(size&1)
	}

	if payload == nil {
		return nil, ErrMissingData
	}
	if format == nil {
		// data antes de fmt: se asume mono, 16 kHz, PCM de 16 bits
		format = &wavFmt{tag: wavFormatPCM, subFormat: wavFormatPCM, channels: 1, sampleRate: 16000, bits: 16}
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty data chunk", ErrMissingData)
	}
	return decodeSamples(format, payload)
}

func parseFmt(chunk []byte) (*wavFmt, error) {
	if len(chunk) < 16 {
		return nil, fmt.Errorf("%w: fmt chunk is %d bytes", ErrTruncated, len(chunk))
	}
	f := &wavFmt{
		tag:        binary.LittleEndian.Uint16(chunk[0:2]),
		channels:   int(binary.LittleEndian.Uint16(chunk[2:4])),
		sampleRate: int(binary.LittleEndian.Uint32(chunk[4:8])),
		bits:       int(binary.LittleEndian.Uint16(chunk[14:16])),
	}
	f.subFormat = f.tag
	if f.tag == wavFormatExtensible {
		if len(chunk) < 40 {
			return nil, fmt.Errorf("%w: extensible fmt chunk is %d bytes", ErrUnsupportedFormat, len(chunk))
		}
		// los dos primeros bytes del GUID SubFormat son el format tag real
		f.subFormat = binary.LittleEndian.Uint16(chunk[24:26])
	}
	if f.channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.channels)
	}
	return f, nil
}

func decodeSamples(f *wavFmt, payload []byte) (*PCM, error) {
	bytesPerSample := f.bits / 8
	if bytesPerSample <= 0 || f.bits%8 != 0 {
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, f.bits)
	}
	total := len(payload) / bytesPerSample
	total -= total % f.channels
	if total == 0 {
		return nil, fmt.Errorf("%w: no complete frames", ErrMissingData)
	}
	samples := make([]float32, total)

	switch {
	case f.subFormat == wavFormatIEEEFloat:
		if f.bits != 32 {
			return nil, fmt.Errorf("%w: float with %d bits", ErrUnsupportedFormat, f.bits)
		}
		for i := range samples {
			v := math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
			samples[i] = clampUnit(v)
		}
	case f.subFormat == wavFormatPCM && f.bits == 16:
		for i := range samples {
			s := int16(binary.LittleEndian.Uint16(payload[i*2:]))
			samples[i] = float32(s) / 32768
		}
	case f.subFormat == wavFormatPCM && f.bits == 24:
		for i := range samples {
			b := payload[i*3:]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			samples[i] = clampUnit(float32(v) / 8388608)
		}
	case f.subFormat == wavFormatPCM && f.bits == 32:
		for i := range samples {
			v := int32(binary.LittleEndian.Uint32(payload[i*4:]))
			samples[i] = clampUnit(float32(float64(v) / 2147483648))
		}
	default:
		return nil, fmt.Errorf("%w: tag=0x%04X bits=%d", ErrUnsupportedFormat, f.subFormat, f.bits)
	}

	return &PCM{Samples: samples, Channels: f.channels, SampleRate: f.sampleRate}, nil
}

// EncodeWAV escribe muestras normalizadas como WAV PCM de 16 bits con header de 44 bytes.
func EncodeWAV(samples []float32, channels, sampleRate int) []byte {
	if channels <= 0 {
		channels = 1
	}
	dataSize := len(samples) * 2
	out := make([]byte, wavHeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(wavHeaderSize+dataSize-8))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	putPCM16(out[wavHeaderSize:], samples)
	return out
}

func clampUnit(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
