package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoToken возвращается всеми вызовами при отсутствии bearer-токена:
// без учётных данных клиент не имеет права трогать API.
var ErrNoToken = errors.New("api: auth token is not set")

// Error — структурированный ответ API об ошибке. Извлекается через errors.As:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden { ... }
type Error struct {
	// StatusCode — HTTP-статус ответа.
	StatusCode int
	// Message — человекочитаемое описание из поля error тела ответа.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

// IsStatus проверяет, что err — это *Error с данным HTTP-статусом.
func IsStatus(err error, code int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == code
	}
	return false
}

// IsNotFound сообщает, что сервер ответил 404.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}
