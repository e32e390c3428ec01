package renderer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgroy10/excel-to-image-api/internal/config"
	"github.com/sgroy10/excel-to-image-api/internal/errs"
	"github.com/sgroy10/excel-to-image-api/internal/queue"
	"github.com/sgroy10/excel-to-image-api/internal/toolexec"
	"github.com/sgroy10/excel-to-image-api/internal/workspace"
)

// LibreOffice converts spreadsheets to PDF by driving the office suite
// headless in a subprocess. Every invocation runs with its own user
// profile inside the request workspace, so concurrent renders never
// share state. Without that, parallel instances fight over the profile
// lock and silently exit without output.
type LibreOffice struct {
	bin     string
	timeout time.Duration
	allowed map[string]struct{}
	gate    *queue.Gate
	runner  toolexec.Runner
	log     zerolog.Logger
}

func NewLibreOffice(cfg config.RendererConfig, exts []string, gate *queue.Gate, runner toolexec.Runner, log zerolog.Logger) *LibreOffice {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = struct{}{}
	}
	return &LibreOffice{
		bin:     cfg.Binary,
		timeout: cfg.Timeout * time.Second,
		allowed: allowed,
		gate:    gate,
		runner:  runner,
		log:     log.With().Str("component", "renderer").Logger(),
	}
}

// RenderPDF converts the document at inputPath into a PDF placed next
// to it in the workspace and returns the PDF path.
func (lo *LibreOffice) RenderPDF(ctx context.Context, ws *workspace.Workspace, inputPath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(inputPath))
	if _, ok := lo.allowed[ext]; !ok {
		return "", errs.New(errs.InvalidInput, "unsupported file extension %q", ext)
	}

	st, err := os.Stat(inputPath)
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "input document not readable")
	}
	if st.Size() == 0 {
		return "", errs.New(errs.InvalidInput, "uploaded file is empty")
	}

	release, err := lo.gate.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	profile, err := ws.ProfileDir()
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "prepare office profile")
	}

	ctx, cancel := context.WithTimeout(ctx, lo.timeout)
	defer cancel()

	start := time.Now()
	res, err := lo.runner.Run(ctx, toolexec.Command{
		Path: lo.bin,
		Args: []string{
			"--headless",
			"--norestore",
			"-env:UserInstallation=file://" + profile,
			"--convert-to", "pdf",
			"--outdir", ws.Dir(),
			inputPath,
		},
		// Stray lock files and caches must land in the workspace,
		// not in the service user's real home.
		Env: []string{"HOME=" + ws.Dir()},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errs.New(errs.Timeout, "document render did not finish within %s", lo.timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		return "", errs.Wrap(errs.ExternalToolFailed, err, "office render failed: %s", res.StderrLine())
	}

	pdf := strings.TrimSuffix(inputPath, ext) + ".pdf"
	st, err = os.Stat(pdf)
	if err != nil || st.Size() == 0 {
		// Exit code 0 with no PDF is a known office suite failure
		// mode (missing filter, unreadable content). Stderr usually
		// says why.
		return "", errs.New(errs.NoOutputProduced, "office reported success but produced no PDF: %s", res.StderrLine())
	}

	lo.log.Debug().Str("workspace", ws.Token()).Dur("took", time.Since(start)).Msg("document rendered")
	return pdf, nil
}
