// Package audio clasifica y decodifica el audio que devuelve el relay.
// El Content-Type declarado por el proveedor no es confiable, así que la
// clasificación mira primero los bytes.
package audio

import (
	"bytes"
	"strings"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

var (
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicID3  = []byte("ID3")
)

// Sniff decide el formato de data. Orden: firma WAV, firma MP3 (ID3 o frame
// sync), y recién después el Content-Type declarado.
func Sniff(data []byte, declaredContentType string) Format {
	if len(data) >= 12 && bytes.Equal(data[0:4], magicRIFF) && bytes.Equal(data[8:12], magicWAVE) {
		return FormatWAV
	}
	if len(data) >= 3 && bytes.Equal(data[0:3], magicID3) {
		return FormatMP3
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}

	ct := strings.ToLower(declaredContentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return FormatMP3
	case strings.Contains(ct, "wav"):
		return FormatWAV
	}
	return FormatUnknown
}
