package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/budgetblitz/budgetblitz/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Errors
// outside the catalog are logged and rendered as a generic 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var domainErr *shared.Error
	if !errors.As(err, &domainErr) || !domainErr.Code.Known() {
		if logger != nil {
			logger.Error("unhandled error", slog.Any("error", err))
		}
		RespondCode(w, shared.CodeInternal, "")
		return
	}
	if domainErr.Code.Status() >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.String("code", string(domainErr.Code)), slog.Any("error", err))
	}
	RespondCode(w, domainErr.Code, domainErr.Detail)
}

// RespondCode renders the problem document for a catalog code.
func RespondCode(w http.ResponseWriter, code shared.ErrorCode, detail string) {
	status := code.Status()
	writeProblem(w, ProblemDetail{
		Title:          http.StatusText(status),
		Status:         status,
		Detail:         detail,
		Code:           string(code),
		DefaultMessage: code.Message(),
	})
}

// RespondValidation renders a 400 problem listing invalid fields.
func RespondValidation(w http.ResponseWriter, fields []FieldError) {
	code := shared.CodeValidationFailed
	writeProblem(w, ProblemDetail{
		Title:            http.StatusText(code.Status()),
		Status:           code.Status(),
		Code:             string(code),
		DefaultMessage:   code.Message(),
		ValidationErrors: fields,
	})
}

// FieldErrors converts validator failures into response field errors.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Code: "invalid", Message: "request body is malformed"}}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   lowerFirst(fe.Field()),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "invalid email format"
	case "min", "max", "len":
		return fe.Field() + " length must satisfy " + fe.Tag() + "=" + fe.Param()
	case "maxbytes":
		return fe.Field() + " must be at most " + fe.Param() + " bytes"
	case "nondisposable":
		return "disposable email addresses are not allowed"
	case "strongpassword":
		return "password must contain at least one uppercase letter, one lowercase letter, and one special character"
	case "lettersonly":
		return fe.Field() + " must contain only letters"
	case "pastdate":
		return fe.Field() + " must be in the past"
	case "numeric":
		return fe.Field() + " must contain only digits"
	default:
		return fe.Field() + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
