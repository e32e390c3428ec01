package rasterizer

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"regexp"
	"sort"
	"strconv"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"github.com/sgroy10/excel-to-image-api/internal/config"
	"github.com/sgroy10/excel-to-image-api/internal/entities"
	"github.com/sgroy10/excel-to-image-api/internal/errs"
	"github.com/sgroy10/excel-to-image-api/internal/toolexec"
	"github.com/sgroy10/excel-to-image-api/internal/workspace"
)

// output files are named <prefix>-<n>.png by pdftoppm, zero-padded to
// the width of the last page number
const outPrefix = "page"

var pageFileRe = regexp.MustCompile(`^page-0*([0-9]+)\.png$`)

// Poppler rasterizes PDF pages to PNG with pdftoppm.
type Poppler struct {
	bin     string
	timeout time.Duration
	maxDPI  int
	runner  toolexec.Runner
	log     zerolog.Logger
}

func NewPoppler(cfg config.RasterizerConfig, runner toolexec.Runner, log zerolog.Logger) *Poppler {
	return &Poppler{
		bin:     cfg.Binary,
		timeout: cfg.Timeout * time.Second,
		maxDPI:  cfg.MaxDPI,
		runner:  runner,
		log:     log.With().Str("component", "rasterizer").Logger(),
	}
}

// PageCount reads the page count from the PDF itself, without
// spawning a process.
func (p *Poppler) PageCount(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, err, "open rendered PDF")
	}
	defer f.Close()

	ctx, err := pdfapi.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, errs.Wrap(errs.ExternalToolFailed, err, "rendered PDF is not readable")
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, errs.Wrap(errs.ExternalToolFailed, err, "rendered PDF has no page tree")
	}
	return ctx.PageCount, nil
}

// Rasterize converts the selected page(s) of the PDF into PNG images,
// returned in increasing page order.
func (p *Poppler) Rasterize(ctx context.Context, ws *workspace.Workspace, pdfPath string, dpi int, sel entities.PageSelector) ([]entities.RasterPage, error) {
	if dpi < 1 || dpi > p.maxDPI {
		return nil, errs.New(errs.InvalidInput, "dpi must be between 1 and %d", p.maxDPI)
	}
	if !sel.All && sel.Page < 1 {
		return nil, errs.New(errs.InvalidInput, "page must be 1 or greater")
	}

	args := []string{"-png", "-r", strconv.Itoa(dpi)}
	if !sel.All {
		n := strconv.Itoa(sel.Page)
		args = append(args, "-f", n, "-l", n, "-singlefile")
	}
	args = append(args, pdfPath, ws.Join(outPrefix))

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.runner.Run(ctx, toolexec.Command{Path: p.bin, Args: args})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.New(errs.Timeout, "page rasterization did not finish within %s", p.timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.ExternalToolFailed, err, "pdftoppm failed: %s", res.StderrLine())
	}

	var pages []entities.RasterPage
	if sel.All {
		pages, err = collectAll(ws)
	} else {
		pages, err = collectSingle(ws, sel.Page)
	}
	if err != nil {
		return nil, err
	}

	p.log.Debug().Str("workspace", ws.Token()).Int("dpi", dpi).Int("pages", len(pages)).
		Dur("took", time.Since(start)).Msg("pdf rasterized")
	return pages, nil
}

// with -singlefile pdftoppm writes exactly <prefix>.png
func collectSingle(ws *workspace.Workspace, number int) ([]entities.RasterPage, error) {
	page, err := readPage(ws.Join(outPrefix+".png"), number)
	if err != nil {
		return nil, err
	}
	return []entities.RasterPage{page}, nil
}

func collectAll(ws *workspace.Workspace) ([]entities.RasterPage, error) {
	entries, err := os.ReadDir(ws.Dir())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "list workspace")
	}

	found := map[int]string{}
	var numbers []int
	for _, e := range entries {
		m := pageFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		found[n] = e.Name()
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return nil, errs.New(errs.NoOutputProduced, "rasterizer exited cleanly but produced no page images")
	}
	sort.Ints(numbers)

	pages := make([]entities.RasterPage, 0, len(numbers))
	for i, n := range numbers {
		if n != i+1 {
			return nil, errs.New(errs.NoOutputProduced, "rasterizer output is missing page %d", i+1)
		}
		page, err := readPage(ws.Join(found[n]), n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func readPage(path string, number int) (entities.RasterPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.RasterPage{}, errs.New(errs.NoOutputProduced, "rasterizer exited cleanly but the image for page %d is missing", number)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return entities.RasterPage{}, errs.Wrap(errs.NoOutputProduced, err, "image for page %d is not readable PNG", number)
	}
	return entities.RasterPage{Number: number, Width: cfg.Width, Height: cfg.Height, PNG: data}, nil
}
