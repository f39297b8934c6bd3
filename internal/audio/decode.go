package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"mr-relay/internal/domain"
)

// ErrUnknownFormat se devuelve cuando ni MP3 ni WAV pudieron decodificar el blob.
var ErrUnknownFormat = errors.New("audio: unknown format")

// ErrCorruptStream indica que el decodificador abortó sobre datos malformados.
var ErrCorruptStream = errors.New("audio: corrupt stream")

// DecodeFunc convierte bytes en muestras PCM.
type DecodeFunc func(data []byte) (*PCM, error)

// Decoded es el resultado de Decode. Probed indica que el formato no se pudo
// determinar y se llegó al resultado probando decodificadores.
type Decoded struct {
	PCM    *PCM
	Format Format
	Probed bool
}

// Decoder elige el decodificador según Sniff.
type Decoder struct {
	MP3 DecodeFunc
	WAV DecodeFunc
}

func NewDecoder() *Decoder {
	return &Decoder{MP3: DecodeMP3, WAV: DecodeWAV}
}

// Decode usa el decodificador de NewDecoder.
func Decode(blob domain.AudioBlob) (*Decoded, error) {
	return NewDecoder().Decode(blob)
}

// Decode clasifica el blob y lo decodifica. Con formato desconocido prueba
// MP3 y después WAV: preferimos reproducir algo antes que fallar por la etiqueta.
func (d *Decoder) Decode(blob domain.AudioBlob) (*Decoded, error) {
	if len(blob.Data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrUnknownFormat)
	}

	switch format := Sniff(blob.Data, blob.ContentType); format {
	case FormatMP3:
		pcm, err := safeDecode(d.MP3, blob.Data)
		if err != nil {
			return nil, fmt.Errorf("decode mp3: %w", err)
		}
		return &Decoded{PCM: pcm, Format: format}, nil
	case FormatWAV:
		pcm, err := safeDecode(d.WAV, blob.Data)
		if err != nil {
			return nil, fmt.Errorf("decode wav: %w", err)
		}
		return &Decoded{PCM: pcm, Format: format}, nil
	}

	pcm, mp3Err := safeDecode(d.MP3, blob.Data)
	if mp3Err == nil {
		return &Decoded{PCM: pcm, Format: FormatMP3, Probed: true}, nil
	}
	pcm, wavErr := safeDecode(d.WAV, blob.Data)
	if wavErr == nil {
		return &Decoded{PCM: pcm, Format: FormatWAV, Probed: true}, nil
	}
	return nil, fmt.Errorf("%w (content-type %q, %d bytes): %w",
		ErrUnknownFormat, blob.ContentType, len(blob.Data), errors.Join(mp3Err, wavErr))
}

// safeDecode convierte un panic del decodificador en error.
func safeDecode(fn DecodeFunc, data []byte) (pcm *PCM, err error) {
	defer func() {
		if r := recover(); r != nil {
			pcm, err = nil, fmt.Errorf("%w: decoder panic: %v", ErrCorruptStream, r)
		}
	}()
	return fn(data)
}

// DecodeMP3 decodifica a PCM estéreo; go-mp3 siempre entrega 2 canales de 16 bits.
// go-mp3 puede entrar en panic con frames malformados; se devuelve ErrCorruptStream.
func DecodeMP3(data []byte) (pcm *PCM, err error) {
	defer func() {
		if r := recover(); r != nil {
			pcm, err = nil, fmt.Errorf("mp3: %w: %v", ErrCorruptStream, r)
		}
	}()
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3: read frames: %w", err)
	}
	if len(raw) < 4 {
		return nil, errors.New("mp3: no audio frames")
	}
	return &PCM{
		Samples:    PCM16ToFloat(raw),
		Channels:   2,
		SampleRate: dec.SampleRate(),
	}, nil
}
