package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/sgroy10/excel-to-image-api/internal/config"
	"github.com/sgroy10/excel-to-image-api/internal/entities"
	"github.com/sgroy10/excel-to-image-api/internal/errs"
)

const serviceName = "Excel to Image API"

type Converter interface {
	Convert(ctx context.Context, req entities.ConversionRequest) (*entities.ConversionResult, error)
}

type Handler struct {
	converter Converter
	cfg       *config.Config
	validator *validator.Validate
	log       zerolog.Logger
}

func New(converter Converter, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		converter: converter,
		cfg:       cfg,
		validator: validator.New(),
		log:       log.With().Str("component", "handler").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Service: serviceName})
}

// Convert renders a single page of the uploaded spreadsheet as PNG.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r, false)
	if !ok {
		return
	}

	result, err := h.converter.Convert(r.Context(), req)
	if err != nil {
		h.writeConversionError(w, r, err)
		return
	}

	page := result.Pages[0]

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(page.PNG)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s_page%d.png", baseStem(req.Filename), page.Number))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(page.PNG)
}

// ConvertAll renders every page and returns them base64-encoded, in
// page order.
func (h *Handler) ConvertAll(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r, true)
	if !ok {
		return
	}

	result, err := h.converter.Convert(r.Context(), req)
	if err != nil {
		h.writeConversionError(w, r, err)
		return
	}

	resp := ConvertAllResponse{
		Filename:   result.Filename,
		TotalPages: result.TotalPages,
		Images:     make([]PageImage, 0, len(result.Pages)),
	}
	for _, p := range result.Pages {
		resp.Images = append(resp.Images, PageImage{
			PageNumber:  p.Number,
			Width:       p.Width,
			Height:      p.Height,
			ImageBase64: base64.StdEncoding.EncodeToString(p.PNG),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("encode response")
	}
}

// parseRequest turns the multipart form into a typed request. On any
// problem it writes the error response itself and returns ok=false.
func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request, allPages bool) (entities.ConversionRequest, bool) {
	var req entities.ConversionRequest

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	maxMultipartMem := h.cfg.Upload.MaxMultipartMemoryMB
	if err := r.ParseMultipartForm(maxMultipartMem << 20); err != nil {
		writeMultipartError(w, err)
		return req, false
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing document: form field key should be "file"`, errs.InvalidInput, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), errs.InvalidInput, http.StatusBadRequest)
		}
		return req, false
	}
	defer file.Close()

	dpi, err := parseIntField(r, "dpi", h.cfg.Convert.DefaultDPI)
	if err != nil {
		writeJSONError(w, err.Error(), errs.InvalidInput, http.StatusBadRequest)
		return req, false
	}

	page := 1
	if !allPages {
		if page, err = parseIntField(r, "page", 1); err != nil {
			writeJSONError(w, err.Error(), errs.InvalidInput, http.StatusBadRequest)
			return req, false
		}
	}

	params := ConvertParams{DPI: dpi, Page: page}
	if err := h.validator.Struct(params); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(validationErrorsToMap(err))
		return req, false
	}

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSONError(w, err.Error(), errs.Internal, http.StatusInternalServerError)
		return req, false
	}
	if err := validateMimeType(mime.String()); err != nil {
		writeJSONError(w, fmt.Sprintf("unsupported file type: %s", mime.String()), errs.InvalidInput, http.StatusBadRequest)
		return req, false
	}

	if _, err := file.Seek(0, 0); err != nil {
		writeJSONError(w, err.Error(), errs.Internal, http.StatusInternalServerError)
		return req, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, "failed to read uploaded file", errs.Internal, http.StatusInternalServerError)
		return req, false
	}

	sel := entities.SinglePage(page)
	if allPages {
		sel = entities.AllPages()
	}

	req = entities.ConversionRequest{
		Filename: fh.Filename,
		Ext:      strings.ToLower(filepath.Ext(fh.Filename)),
		Data:     data,
		DPI:      dpi,
		Pages:    sel,
	}
	return req, true
}

func (h *Handler) writeConversionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.log.Debug().Msg("client went away mid-conversion")
		return
	}

	kind := errs.KindOf(err)
	switch kind {
	case errs.ExternalToolFailed, errs.NoOutputProduced, errs.Internal:
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("conversion failed")
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
	default:
		h.log.Info().Err(err).Str("kind", string(kind)).Msg("conversion rejected")
	}

	writeJSONError(w, err.Error(), kind, statusFor(kind))
}
