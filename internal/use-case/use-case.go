package use_case

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgroy10/excel-to-image-api/internal/entities"
	"github.com/sgroy10/excel-to-image-api/internal/errs"
	"github.com/sgroy10/excel-to-image-api/internal/workspace"
)

type Workspaces interface {
	Acquire() (*workspace.Workspace, error)
}

type Renderer interface {
	RenderPDF(ctx context.Context, ws *workspace.Workspace, inputPath string) (string, error)
}

type Rasterizer interface {
	PageCount(pdfPath string) (int, error)
	Rasterize(ctx context.Context, ws *workspace.Workspace, pdfPath string, dpi int, sel entities.PageSelector) ([]entities.RasterPage, error)
}

type stage string

const (
	stageValidating  stage = "validating"
	stageRendering   stage = "rendering"
	stageRasterizing stage = "rasterizing"
	stageAssembling  stage = "assembling"
)

type useCase struct {
	workspaces Workspaces
	renderer   Renderer
	rasterizer Rasterizer
	allowed    map[string]struct{}
	maxDPI     int
	log        zerolog.Logger
}

func New(workspaces Workspaces, renderer Renderer, rasterizer Rasterizer, allowedExts []string, maxDPI int, log zerolog.Logger) *useCase {
	allowed := make(map[string]struct{}, len(allowedExts))
	for _, e := range allowedExts {
		allowed[strings.ToLower(e)] = struct{}{}
	}
	return &useCase{
		workspaces: workspaces,
		renderer:   renderer,
		rasterizer: rasterizer,
		allowed:    allowed,
		maxDPI:     maxDPI,
		log:        log.With().Str("component", "converter").Logger(),
	}
}

// Convert runs the pipeline for one request: validate, isolate, render
// to PDF, rasterize to PNG, assemble. The workspace is deleted on every
// exit path. Adapter errors pass through untouched so their kind
// reaches the transport layer.
func (c *useCase) Convert(ctx context.Context, req entities.ConversionRequest) (res *entities.ConversionResult, retErr error) {
	start := time.Now()
	log := c.log.With().
		Str("filename", req.Filename).
		Int("dpi", req.DPI).
		Str("pages", req.Pages.String()).
		Logger()

	st := stageValidating
	defer func() {
		if retErr != nil && !errors.Is(retErr, context.Canceled) {
			log.Warn().Err(retErr).Str("stage", string(st)).Str("kind", string(errs.KindOf(retErr))).Msg("conversion failed")
		}
	}()

	if err := c.validate(req); err != nil {
		return nil, err
	}

	ws, err := c.workspaces.Acquire()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "acquire workspace")
	}
	defer func() {
		if err := ws.Release(); err != nil {
			log.Error().Err(err).Str("workspace", ws.Token()).Msg("workspace release failed")
		}
	}()
	log = log.With().Str("workspace", ws.Token()).Logger()

	inputPath, err := ws.WriteInput(req.Data, strings.ToLower(req.Ext))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "persist upload")
	}

	st = stageRendering
	log.Debug().Str("stage", string(st)).Msg("pipeline stage")
	pdfPath, err := c.renderer.RenderPDF(ctx, ws, inputPath)
	if err != nil {
		return nil, err
	}

	st = stageRasterizing
	log.Debug().Str("stage", string(st)).Msg("pipeline stage")
	total, err := c.rasterizer.PageCount(pdfPath)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errs.New(errs.InvalidInput, "document produced no pages")
	}
	if !req.Pages.All && req.Pages.Page > total {
		return nil, errs.New(errs.InvalidInput, "page %d not found: document has %d page(s)", req.Pages.Page, total)
	}

	pages, err := c.rasterizer.Rasterize(ctx, ws, pdfPath, req.DPI, req.Pages)
	if err != nil {
		return nil, err
	}

	st = stageAssembling
	result := &entities.ConversionResult{
		Filename:   req.Filename,
		TotalPages: total,
		Pages:      pages,
	}

	log.Info().Int("total_pages", total).Int("images", len(pages)).
		Dur("took", time.Since(start)).Msg("conversion finished")
	return result, nil
}

func (c *useCase) validate(req entities.ConversionRequest) error {
	ext := strings.ToLower(req.Ext)
	if _, ok := c.allowed[ext]; !ok {
		return errs.New(errs.InvalidInput, "unsupported file extension %q", req.Ext)
	}
	if len(req.Data) == 0 {
		return errs.New(errs.InvalidInput, "uploaded file is empty")
	}
	if req.DPI < 1 || req.DPI > c.maxDPI {
		return errs.New(errs.InvalidInput, "dpi must be between 1 and %d", c.maxDPI)
	}
	if !req.Pages.All && req.Pages.Page < 1 {
		return errs.New(errs.InvalidInput, "page must be 1 or greater")
	}
	return nil
}
