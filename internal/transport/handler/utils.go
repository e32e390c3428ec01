package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sgroy10/excel-to-image-api/internal/errs"
)

type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSONError(w http.ResponseWriter, message string, kind errs.Kind, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(APIError{
		Error: message,
		Code:  string(kind),
	})
}

func writeMultipartError(w http.ResponseWriter, err error) {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "too large"):
		writeJSONError(w, "uploaded file exceeds maximum allowed size", errs.InvalidInput, http.StatusRequestEntityTooLarge)

	case strings.Contains(msg, "content-type isn't multipart/form-data"):
		writeJSONError(w, "invalid content type, expected multipart/form-data", errs.InvalidInput, http.StatusBadRequest)

	default:
		writeJSONError(w, err.Error(), errs.Internal, http.StatusInternalServerError)
	}
}

// statusFor maps the error taxonomy onto HTTP statuses. A timeout is
// the converter's fault, not the client's, hence 504.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.InvalidInput:
		return http.StatusBadRequest
	case errs.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseIntField(r *http.Request, name string, def int) (int, error) {
	s := strings.TrimSpace(r.Form.Get(name))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, s)
	}
	return v, nil
}

func validationErrorsToMap(err error) map[string]string {
	errsMap := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range verrs {
			field := e.Field()
			switch e.Tag() {
			case "gte", "lte":
				errsMap[field] = "out of allowed range"
			default:
				errsMap[field] = "invalid value"
			}
		}
	} else {
		errsMap["error"] = err.Error()
	}
	return errsMap
}

var filenameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// baseStem extracts a safe filename stem for Content-Disposition.
// Client filenames can contain anything, including path separators.
func baseStem(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = filenameSanitizer.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "._")
	if stem == "" {
		return "document"
	}
	return stem
}

// The sniffer cannot always tell an .xls apart from other OLE
// containers or an .xlsx from a plain zip, so generic container types
// stay allowed; the office suite is the real authority. Conclusive
// foreign types (images, PDFs, HTML) are rejected here.
var allowedMIMEs = map[string]struct{}{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.ms-excel":                                          {},
	"application/x-ole-storage":                                         {},
	"application/zip":                                                   {},
	"application/octet-stream":                                          {},
}

func validateMimeType(mimeType string) error {
	if _, ok := allowedMIMEs[mimeType]; !ok {
		return fmt.Errorf("requested conversion with invalid content type: %s", mimeType)
	}
	return nil
}
