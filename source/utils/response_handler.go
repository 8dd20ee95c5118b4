package utils

import (
	"crm/source/schemas"
	"encoding/json"
	"errors"
	"net/http"
)

func SendResponse(w http.ResponseWriter, statusCode int, message string, data any, internalErrorCode int) {
	if internalErrorCode != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(schemas.ApiResponse{
			Message: SendInternalError(internalErrorCode),
		})
		return
	}

	if (message == "") && (data == nil) {
		w.WriteHeader(statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(schemas.ApiResponse{
		Data:    data,
		Message: message,
	})
}

// SendError writes err using the envelope clients decode back into the
// Err* kinds. Errors that are not a *DomainError become a 500 carrying
// fallbackCode.
func SendError(w http.ResponseWriter, err error, fallbackCode int) {
	status, message, kind := DescribeError(err, fallbackCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(schemas.ApiResponse{
		Message: message,
		Error:   kind,
	})
}

// DescribeError returns the status, the user-facing message and the kind tag
// err is reported with. Internal details of 5xx errors are not exposed.
func DescribeError(err error, fallbackCode int) (int, string, string) {
	domainErr := &DomainError{}
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, SendInternalError(fallbackCode), ""
	}

	message := domainErr.Message
	if message == "" || domainErr.Status >= http.StatusInternalServerError {
		message = SendInternalError(domainErr.Code)
	}
	return domainErr.Status, message, ErrorKind(domainErr)
}
