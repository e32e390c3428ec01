package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgroy10/excel-to-image-api/internal/config"
	"github.com/sgroy10/excel-to-image-api/internal/entities"
	"github.com/sgroy10/excel-to-image-api/internal/errs"
)

// zip local file header: how a real .xlsx upload sniffs
var xlsxContent = append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 64)...)

// OLE compound file header: how a real .xls upload sniffs
var xlsContent = append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, bytes.Repeat([]byte{0}, 64)...)

var pngContent = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, bytes.Repeat([]byte{0}, 64)...)

type fakeConverter struct {
	fn    func(ctx context.Context, req entities.ConversionRequest) (*entities.ConversionResult, error)
	calls int
	last  entities.ConversionRequest
}

func (f *fakeConverter) Convert(ctx context.Context, req entities.ConversionRequest) (*entities.ConversionResult, error) {
	f.calls++
	f.last = req
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	page := 1
	if !req.Pages.All {
		page = req.Pages.Page
	}
	return &entities.ConversionResult{
		Filename:   req.Filename,
		TotalPages: page,
		Pages:      []entities.RasterPage{{Number: page, Width: 100, Height: 140, PNG: []byte("png-bytes")}},
	}, nil
}

func testHandler(conv Converter) *Handler {
	return New(conv, config.NewConfig(), zerolog.Nop())
}

func multipartRequest(t *testing.T, target, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	testHandler(&fakeConverter{}).Health(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Excel to Image API", resp.Service)
}

func TestConvertReturnsPNG(t *testing.T) {
	conv := &fakeConverter{}
	rec := httptest.NewRecorder()

	req := multipartRequest(t, "/convert", "Report Q3.xlsx", xlsxContent, nil)
	testHandler(conv).Convert(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "inline; filename=Report_Q3_page1.png", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "png-bytes", rec.Body.String())

	assert.Equal(t, 1, conv.calls)
	assert.Equal(t, ".xlsx", conv.last.Ext)
	assert.Equal(t, xlsxContent, conv.last.Data)
	assert.Equal(t, 200, conv.last.DPI, "dpi defaults from config")
	assert.Equal(t, entities.SinglePage(1), conv.last.Pages)
}

func TestConvertParsesParams(t *testing.T) {
	conv := &fakeConverter{}
	rec := httptest.NewRecorder()

	req := multipartRequest(t, "/convert", "book.xls", xlsContent, map[string]string{"dpi": "300", "page": "2"})
	testHandler(conv).Convert(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 300, conv.last.DPI)
	assert.Equal(t, entities.SinglePage(2), conv.last.Pages)
	assert.Equal(t, "inline; filename=book_page2.png", rec.Header().Get("Content-Disposition"))
}

func TestConvertRejectsNonIntegerDPI(t *testing.T) {
	conv := &fakeConverter{}
	rec := httptest.NewRecorder()

	req := multipartRequest(t, "/convert", "book.xlsx", xlsxContent, map[string]string{"dpi": "abc"})
	testHandler(conv).Convert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, conv.calls, "converter must not run for malformed params")

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Contains(t, apiErr.Error, "dpi must be an integer")
	assert.Equal(t, string(errs.InvalidInput), apiErr.Code)
}

func TestConvertRejectsOutOfRangeParams(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"zero dpi", map[string]string{"dpi": "0"}},
		{"negative dpi", map[string]string{"dpi": "-100"}},
		{"zero page", map[string]string{"page": "0"}},
		{"negative page", map[string]string{"page": "-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConverter{}
			rec := httptest.NewRecorder()

			req := multipartRequest(t, "/convert", "book.xlsx", xlsxContent, tt.fields)
			testHandler(conv).Convert(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, conv.calls)
		})
	}
}

func TestConvertRejectsForeignContent(t *testing.T) {
	conv := &fakeConverter{}
	rec := httptest.NewRecorder()

	req := multipartRequest(t, "/convert", "disguised.xlsx", pngContent, nil)
	testHandler(conv).Convert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, conv.calls)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Contains(t, apiErr.Error, "image/png")
}

func TestConvertMissingFileField(t *testing.T) {
	conv := &fakeConverter{}
	rec := httptest.NewRecorder()

	req := multipartRequest(t, "/convert", "", nil, map[string]string{"dpi": "200"})
	testHandler(conv).Convert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, conv.calls)
	assert.Contains(t, rec.Body.String(), "missing document")
}

func TestConvertRejectsOversizedBody(t *testing.T) {
	conv := &fakeConverter{}
	cfg := config.NewConfig()
	cfg.Upload.MaxRequestBodyMB = 1
	h := New(conv, cfg, zerolog.Nop())

	rec := httptest.NewRecorder()
	big := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 2<<20)...)
	req := multipartRequest(t, "/convert", "big.xlsx", big, nil)
	h.Convert(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, conv.calls)
}

func TestConvertErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", errs.New(errs.InvalidInput, "page 9 not found: document has 2 page(s)"), http.StatusBadRequest, "INVALID_INPUT"},
		{"timeout", errs.New(errs.Timeout, "document render did not finish within 1m0s"), http.StatusGatewayTimeout, "TIMEOUT"},
		{"tool failed", errs.New(errs.ExternalToolFailed, "office render failed: exit status 1"), http.StatusInternalServerError, "EXTERNAL_TOOL_FAILED"},
		{"no output", errs.New(errs.NoOutputProduced, "office reported success but produced no PDF"), http.StatusInternalServerError, "NO_OUTPUT_PRODUCED"},
		{"untagged", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConverter{fn: func(ctx context.Context, req entities.ConversionRequest) (*entities.ConversionResult, error) {
				return nil, tt.err
			}}
			rec := httptest.NewRecorder()

			req := multipartRequest(t, "/convert", "book.xlsx", xlsxContent, nil)
			testHandler(conv).Convert(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var apiErr APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.NotEmpty(t, apiErr.Error)
		})
	}
}

func TestConvertAllReturnsOrderedJSON(t *testing.T) {
	conv := &fakeConverter{fn: func(ctx context.Context, req entities.ConversionRequest) (*entities.ConversionResult, error) {
		return &entities.ConversionResult{
			Filename:   req.Filename,
			TotalPages: 3,
			Pages: []entities.RasterPage{
				{Number: 1, Width: 100, Height: 140, PNG: []byte("p1")},
				{Number: 2, Width: 100, Height: 140, PNG: []byte("p2")},
				{Number: 3, Width: 100, Height: 140, PNG: []byte("p3")},
			},
		}, nil
	}}
	rec := httptest.NewRecorder()

	req := multipartRequest(t, "/convert-all", "book.xlsx", xlsxContent, map[string]string{"dpi": "150", "page": "5"})
	testHandler(conv).ConvertAll(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.True(t, conv.last.Pages.All, "convert-all must request every page")
	assert.Equal(t, 150, conv.last.DPI)

	var resp ConvertAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "book.xlsx", resp.Filename)
	assert.Equal(t, 3, resp.TotalPages)
	require.Len(t, resp.Images, 3)

	for i, img := range resp.Images {
		assert.Equal(t, i+1, img.PageNumber)
		decoded, err := base64.StdEncoding.DecodeString(img.ImageBase64)
		require.NoError(t, err)
		assert.Equal(t, []byte{'p', byte('1' + i)}, decoded)
		assert.Equal(t, 100, img.Width)
		assert.Equal(t, 140, img.Height)
	}
}

func TestConvertWritesNothingWhenClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conv := &fakeConverter{fn: func(ctx context.Context, req entities.ConversionRequest) (*entities.ConversionResult, error) {
		cancel()
		return nil, context.Canceled
	}}
	rec := httptest.NewRecorder()

	req := multipartRequest(t, "/convert", "book.xlsx", xlsxContent, nil).WithContext(ctx)
	testHandler(conv).Convert(rec, req)

	assert.Zero(t, rec.Body.Len(), "no response body for a disconnected client")
}

func TestBaseStem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Report Q3.xlsx", "Report_Q3"},
		{"../../etc/passwd.xls", "passwd"},
		{"weird/päth name!!.xlsm", "p_th_name"},
		{"...xlsx", "document"},
		{"", "document"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, baseStem(tt.in), "stem of %q", tt.in)
	}
}
