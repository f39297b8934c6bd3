package domain

import (
	"errors"
	"fmt"
)

// ErrResponseTooLarge indica que una respuesta superó el techo de lectura.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ValidationError indica input inválido del cliente; nunca llega al proveedor.
type ValidationError struct {
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UpstreamError es una respuesta no exitosa del proveedor.
type UpstreamError struct {
	Path        string
	Status      int
	Body        []byte
	ContentType string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %d: %s", e.Path, e.Status, string(e.Body))
}

// TransportError es una falla de red al contactar al proveedor.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s unreachable: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsValidation reporta si err (o algo que envuelve) es un ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AsUpstream extrae un UpstreamError de la cadena de err.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
