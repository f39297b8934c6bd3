package domain

import "strings"

// TTSFormat es el único encoding que el relay pide al proveedor.
const TTSFormat = "mp3"

// TTSContentType es el Content-Type que el relay declara en respuestas de /tts.
const TTSContentType = "audio/mpeg"

type TTSRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (r TTSRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return NewValidationError("text required")
	}
	return nil
}

// AudioBlob son bytes de audio con un Content-Type declarado que puede ser incorrecto.
type AudioBlob struct {
	Data        []byte
	ContentType string
}

// STTUpload es el archivo recibido en /stt, listo para reenviarse.
type STTUpload struct {
	Filename    string
	ContentType string
	Data        []byte
	Language    string
	Prompt      string
}

// STTFieldNames son los campos multipart aceptados, en orden de preferencia.
var STTFieldNames = []string{"audio", "file", "audio_file"}

// SessionCredential es la clave efímera anidada en el payload de sesión realtime.
type SessionCredential struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// SessionPayload describe lo mínimo que el cliente necesita leer de /session.
type SessionPayload struct {
	ID           string            `json:"id,omitempty"`
	Model        string            `json:"model,omitempty"`
	ClientSecret SessionCredential `json:"client_secret"`
}
