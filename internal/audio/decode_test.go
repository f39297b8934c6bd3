package audio

import (
	"errors"
	"math/rand"
	"testing"

	"mr-relay/internal/domain"
)

type probeRecorder struct {
	calls []string
}

func (r *probeRecorder) decoder(name string, result *PCM, err error) DecodeFunc {
	return func([]byte) (*PCM, error) {
		r.calls = append(r.calls, name)
		return result, err
	}
}

func TestDecoder_UnknownTriesMP3ThenWAV(t *testing.T) {
	rec := &probeRecorder{}
	want := &PCM{Samples: []float32{0}, Channels: 1, SampleRate: 8000}
	d := &Decoder{
		MP3: rec.decoder("mp3", nil, errors.New("no sync")),
		WAV: rec.decoder("wav", want, nil),
	}

	got, err := d.Decode(domain.AudioBlob{Data: []byte("opaque"), ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Format != FormatWAV || !got.Probed || got.PCM != want {
		t.Fatalf("unexpected result %+v", got)
	}
	if len(rec.calls) != 2 || rec.calls[0] != "mp3" || rec.calls[1] != "wav" {
		t.Fatalf("unexpected probe order %v", rec.calls)
	}
}

func TestDecoder_UnknownStopsAtMP3(t *testing.T) {
	rec := &probeRecorder{}
	d := &Decoder{
		MP3: rec.decoder("mp3", &PCM{Channels: 2}, nil),
		WAV: rec.decoder("wav", nil, errors.New("unused")),
	}
	got, err := d.Decode(domain.AudioBlob{Data: []byte("opaque")})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Format != FormatMP3 || !got.Probed || len(rec.calls) != 1 {
		t.Fatalf("unexpected result %+v calls=%v", got, rec.calls)
	}
}

func TestDecoder_UnknownBothFail(t *testing.T) {
	mp3Err := errors.New("mp3 broken")
	wavErr := errors.New("wav broken")
	d := &Decoder{
		MP3: func([]byte) (*PCM, error) { return nil, mp3Err },
		WAV: func([]byte) (*PCM, error) { return nil, wavErr },
	}
	_, err := d.Decode(domain.AudioBlob{Data: []byte("opaque"), ContentType: "text/plain"})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if !errors.Is(err, mp3Err) || !errors.Is(err, wavErr) {
		t.Fatalf("expected both probe errors wrapped, got %v", err)
	}
}

func TestDecoder_SignatureBeatsContentType(t *testing.T) {
	rec := &probeRecorder{}
	d := &Decoder{
		MP3: rec.decoder("mp3", nil, errors.New("unexpected")),
		WAV: rec.decoder("wav", &PCM{Channels: 1}, nil),
	}
	wav := EncodeWAV([]float32{0.1}, 1, 16000)
	got, err := d.Decode(domain.AudioBlob{Data: wav, ContentType: domain.TTSContentType})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Format != FormatWAV || got.Probed {
		t.Fatalf("unexpected result %+v", got)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "wav" {
		t.Fatalf("unexpected calls %v", rec.calls)
	}
}

func TestDecoder_KnownFormatDoesNotProbe(t *testing.T) {
	rec := &probeRecorder{}
	d := &Decoder{
		MP3: rec.decoder("mp3", nil, errors.New("bad frame")),
		WAV: rec.decoder("wav", &PCM{Channels: 1}, nil),
	}
	_, err := d.Decode(domain.AudioBlob{Data: []byte{0xFF, 0xFB, 0x00, 0x00}, ContentType: "audio/wav"})
	if err == nil {
		t.Fatalf("expected mp3 error")
	}
	if len(rec.calls) != 1 || rec.calls[0] != "mp3" {
		t.Fatalf("expected only mp3 decoder, got %v", rec.calls)
	}
}

func TestDecode_EmptyBlob(t *testing.T) {
	if _, err := Decode(domain.AudioBlob{}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestDecode_RealWAVWithOctetStream(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25}
	got, err := Decode(domain.AudioBlob{Data: EncodeWAV(in, 1, 24000), ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Format != FormatWAV || got.PCM.SampleRate != 24000 || len(got.PCM.Samples) != len(in) {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestDecodeMP3_Garbage(t *testing.T) {
	if _, err := DecodeMP3([]byte("definitely not an mp3 stream")); err == nil {
		t.Fatalf("expected error decoding garbage as mp3")
	}
}

func TestDecoder_PanickingDecoderFallsThrough(t *testing.T) {
	rec := &probeRecorder{}
	d := &Decoder{
		MP3: func([]byte) (*PCM, error) {
			rec.calls = append(rec.calls, "mp3")
			panic("index out of range [38] with length 38")
		},
		WAV: rec.decoder("wav", nil, ErrNotWAV),
	}

	got, err := d.Decode(domain.AudioBlob{Data: []byte{0x00, 0x01, 0x02}, ContentType: "application/octet-stream"})
	if got != nil {
		t.Fatalf("expected no result, got %+v", got)
	}
	if !errors.Is(err, ErrUnknownFormat) || !errors.Is(err, ErrCorruptStream) {
		t.Fatalf("expected unknown format wrapping corrupt stream, got %v", err)
	}
	if len(rec.calls) != 2 || rec.calls[1] != "wav" {
		t.Fatalf("expected wav probe after mp3 panic, got %v", rec.calls)
	}
}

func TestDecoder_PanickingDecoderOnKnownFormat(t *testing.T) {
	d := &Decoder{
		MP3: func([]byte) (*PCM, error) { panic("bad frame") },
		WAV: DecodeWAV,
	}
	_, err := d.Decode(domain.AudioBlob{Data: []byte{0xFF, 0xFB, 0x90, 0x00}, ContentType: "audio/mpeg"})
	if !errors.Is(err, ErrCorruptStream) {
		t.Fatalf("expected corrupt stream, got %v", err)
	}
}

func TestDecodeMP3_RandomFramesNeverPanic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		data := make([]byte, 512+rng.Intn(4096))
		rng.Read(data)
		data[0], data[1] = 0xFF, 0xFB

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic decoding blob %d (%d bytes): %v", i, len(data), r)
				}
			}()
			_, _ = DecodeMP3(data)
			_, _ = Decode(domain.AudioBlob{Data: data, ContentType: "application/octet-stream"})
		}()
	}
}
