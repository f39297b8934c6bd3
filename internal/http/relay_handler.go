package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mr-relay/internal/domain"
	"mr-relay/internal/service"
)

// multipartOverhead deja margen para boundaries y campos de texto en /stt.
const multipartOverhead = 1 << 20

// RelayHandler expone los endpoints del relay.
type RelayHandler struct {
	logger       *zap.Logger
	relay        *service.RelayService
	maxJSONBytes int64
}

// NewRelayHandler crea el handler con el techo de tamaño para bodies JSON.
func NewRelayHandler(logger *zap.Logger, relay *service.RelayService, maxJSONBytes int64) *RelayHandler {
	if maxJSONBytes <= 0 {
		maxJSONBytes = 2 << 20
	}
	return &RelayHandler{
		logger:       logger,
		relay:        relay,
		maxJSONBytes: maxJSONBytes,
	}
}

// Health maneja GET /health.
func (h *RelayHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Chat maneja POST /chat.
func (h *RelayHandler) Chat(c *gin.Context) {
	body, ok := h.readJSONBody(c)
	if !ok {
		return
	}
	req, err := domain.ParseChatRequest(body)
	if err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.relay.Chat(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, "chat failed", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Session maneja GET /session. El payload del proveedor se devuelve tal cual.
func (h *RelayHandler) Session(c *gin.Context) {
	raw, err := h.relay.Session(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "session failed", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// TTS maneja POST /tts. A diferencia de los demás endpoints, un error del
// proveedor se reenvía con su status y body originales.
func (h *RelayHandler) TTS(c *gin.Context) {
	body, ok := h.readJSONBody(c)
	if !ok {
		return
	}
	var req domain.TTSRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
			return
		}
	}

	blob, err := h.relay.Speech(c.Request.Context(), req)
	if err != nil {
		if domain.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if ue, ok := domain.AsUpstream(err); ok {
			h.logger.Error("tts upstream failed", zap.Int("status", ue.Status), zap.String("request_id", c.GetString(requestIDKey)))
			ctype := ue.ContentType
			if ctype == "" {
				ctype = "application/octet-stream"
			}
			c.Data(ue.Status, ctype, ue.Body)
			return
		}
		h.logger.Error("tts failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, domain.TTSContentType, blob.Data)
}

// STT maneja POST /stt con un archivo bajo audio, file o audio_file.
func (h *RelayHandler) STT(c *gin.Context) {
	maxAudio := h.relay.MaxAudioBytes()
	tooLarge := fmt.Sprintf("audio file exceeds %d bytes", maxAudio)

	if c.Request.ContentLength > maxAudio+multipartOverhead {
		c.JSON(http.StatusBadRequest, gin.H{"error": tooLarge})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudio+multipartOverhead)
	if err := c.Request.ParseMultipartForm(8 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": tooLarge})
			return
		}
		h.logger.Warn("invalid stt form", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file required (field name: audio, file or audio_file)"})
		return
	}
	form := c.Request.MultipartForm
	defer form.RemoveAll()

	hdr := firstFile(form, domain.STTFieldNames)
	if hdr == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file required (field name: audio, file or audio_file)"})
		return
	}
	if hdr.Size > maxAudio {
		c.JSON(http.StatusBadRequest, gin.H{"error": tooLarge})
		return
	}

	f, err := hdr.Open()
	if err != nil {
		h.logger.Error("open stt upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read audio file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxAudio+1))
	if err != nil {
		h.logger.Error("read stt upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read audio file"})
		return
	}

	upload := domain.STTUpload{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
		Language:    formValue(form, "language"),
		Prompt:      formValue(form, "prompt"),
	}
	raw, err := h.relay.Transcribe(c.Request.Context(), upload)
	if err != nil {
		h.writeServiceError(c, "stt failed", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// readJSONBody lee el body con techo de tamaño; escribe la respuesta de error si falla.
func (h *RelayHandler) readJSONBody(c *gin.Context) ([]byte, bool) {
	if c.Request.ContentLength > h.maxJSONBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxJSONBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return nil, false
	}
	return body, true
}

// writeServiceError normaliza errores: validación → 400, todo lo demás → 500 con la causa.
func (h *RelayHandler) writeServiceError(c *gin.Context, msg string, err error) {
	if domain.IsValidation(err) {
		h.logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error(msg, zap.Error(err), zap.String("request_id", c.GetString(requestIDKey)))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func firstFile(form *multipart.Form, fields []string) *multipart.FileHeader {
	for _, name := range fields {
		if files := form.File[name]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}
