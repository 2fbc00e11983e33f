package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jtejido/kioskscanner/internal/imaging"
	"github.com/jtejido/kioskscanner/internal/scanner"
	"github.com/jtejido/kioskscanner/internal/service"
)

// kindStatus maps fatal kinds to HTTP status codes. Retryable kinds and
// exhaustion map to 422: the request was valid but no usable sample was
// taken.
var kindStatus = map[scanner.Kind]int{
	scanner.KindDeviceBusy:         fiber.StatusConflict,
	scanner.KindNoDeviceFound:      fiber.StatusServiceUnavailable,
	scanner.KindResolution:         fiber.StatusServiceUnavailable,
	scanner.KindRetriesExhausted:   fiber.StatusUnprocessableEntity,
	scanner.KindDeviceOpenFailed:   fiber.StatusInternalServerError,
	scanner.KindDeviceDisconnected: fiber.StatusInternalServerError,
	scanner.KindDriverFault:        fiber.StatusInternalServerError,
	scanner.KindUnknownDevice:      fiber.StatusInternalServerError,
}

func errorResponse(err error) (int, ErrorResponse) {
	body := ErrorResponse{Status: "error"}

	var se *scanner.Error
	var fe *fiber.Error
	switch {
	case errors.As(err, &se):
		body.Kind = string(se.Kind)
		body.Message = se.Message
		body.Retryable = se.Retryable
		body.Attempts = se.Attempts
		if body.Message == "" {
			body.Message = scanner.Describe(se.Kind)
		}
		if se.Retryable {
			return fiber.StatusUnprocessableEntity, body
		}
		if se.Kind == scanner.KindCaptureTimeout {
			return fiber.StatusGatewayTimeout, body
		}
		if code, ok := kindStatus[se.Kind]; ok {
			return code, body
		}
		return fiber.StatusInternalServerError, body

	case errors.Is(err, service.ErrInvalidRequest):
		body.Kind = "invalid_request"
		body.Message = err.Error()
		return fiber.StatusBadRequest, body

	case errors.As(err, &fe):
		body.Kind = "http"
		body.Message = fe.Message
		return fe.Code, body
	}

	body.Kind = "internal"
	body.Message = "internal server error"
	return fiber.StatusInternalServerError, body
}

func dataURL(res *service.CaptureResult) string {
	if res.Format == imaging.FormatRaw {
		return ""
	}
	return imaging.DataURL(res.MimeType, res.Sample)
}

func codeTable() []CodeEntry {
	table := scanner.Table()
	out := make([]CodeEntry, 0, len(table))
	for _, e := range table {
		out = append(out, CodeEntry{
			Site:      e.Site.String(),
			Status:    e.Status.String(),
			Kind:      string(e.Kind),
			Retryable: e.Retryable,
		})
	}
	return out
}
