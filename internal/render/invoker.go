// Package render drives the external poster renderer: a command-line
// program that reads city/country/theme/distance and drops a PNG into the
// posters directory. The invoker wraps it with a deadline, one fallback
// attempt at a reduced distance, and output discovery.
package render

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"posterforge/internal/pkg/errors"
	"posterforge/internal/pkg/logger"
	"posterforge/internal/poster"
)

// maxDiagnostics bounds the renderer output kept for operators.
const maxDiagnostics = 2000

// Config configures an Invoker.
type Config struct {
	// Command is the renderer argv prefix, e.g.
	// ["python", "create_map_poster.py"]. Parameters are appended as
	// --city/--country/--theme/--distance flags.
	Command []string
	// PostersDir is where the renderer writes its output.
	PostersDir string
	// Timeout bounds each render attempt; the process is killed beyond it.
	Timeout time.Duration
	// FallbackDistance is the baseline a failed render is retried at, once,
	// when the requested distance exceeds it.
	FallbackDistance int
	// SettleDelay is how long to wait after an apparently successful render
	// before scanning for the produced file.
	SettleDelay time.Duration
	Log         *logger.Logger
}

type Invoker struct {
	command          []string
	postersDir       string
	timeout          time.Duration
	fallbackDistance int
	settleDelay      time.Duration
	log              *logger.Logger
}

func NewInvoker(cfg Config) *Invoker {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 240 * time.Second
	}
	fallback := cfg.FallbackDistance
	if fallback == 0 {
		fallback = 2000
	}
	settle := cfg.SettleDelay
	if settle == 0 {
		settle = 500 * time.Millisecond
	}
	return &Invoker{
		command:          cfg.Command,
		postersDir:       cfg.PostersDir,
		timeout:          timeout,
		fallbackDistance: fallback,
		settleDelay:      settle,
		log:              log.WithComponent("invoker"),
	}
}

// Invoke runs the renderer for p and commits the produced PNG to destPath
// via atomic rename, returning destPath.
//
// The renderer does not accept an output path, so the produced file is
// discovered by comparing the newest PNG in the posters directory before and
// after the run. This is best-effort: the settle delay lets the renderer's
// writes become visible, and an unchanged or absent newest file is a hard
// ARTIFACT_NOT_PRODUCED failure, never a silent retry.
func (v *Invoker) Invoke(ctx context.Context, p poster.Params, destPath string) (string, error) {
	p = p.Normalized()
	log := v.log.FromContext(ctx)

	before := v.newestPoster()

	diag, err := v.runOnce(ctx, p)
	if err != nil {
		if errors.IsCode(err, errors.CodeTimeout) {
			return "", err
		}
		if p.Distance <= v.fallbackDistance {
			return "", renderFailed(diag)
		}

		// Degraded-but-likely-to-succeed retry at the baseline distance.
		fb := p
		fb.Distance = v.fallbackDistance
		log.Warn("render failed, retrying at fallback distance",
			"requested_distance", p.Distance,
			"fallback_distance", fb.Distance,
		)
		diag, err = v.runOnce(ctx, fb)
		if err != nil {
			if errors.IsCode(err, errors.CodeTimeout) {
				return "", err
			}
			return "", renderFailed(diag)
		}
	}

	select {
	case <-time.After(v.settleDelay):
	case <-ctx.Done():
		return "", errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "render.invoke", "render timed out")
	}

	after := v.newestPoster()
	if after == "" || after == before {
		return "", errors.New(errors.CodeArtifactNotProduced, "poster not found after generation")
	}

	if err := os.Rename(after, destPath); err != nil {
		return "", errors.Wrap(err, "render.invoke", "relocate rendered poster")
	}
	log.Debug("poster relocated", "from", after, "to", destPath)
	return destPath, nil
}

// runOnce executes one render attempt under the per-attempt deadline and
// returns the truncated combined output.
func (v *Invoker) runOnce(ctx context.Context, p poster.Params) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	argv := make([]string, 0, len(v.command)+8)
	argv = append(argv, v.command...)
	argv = append(argv,
		"--city", p.City,
		"--country", p.Country,
		"--theme", p.Theme,
		"--distance", strconv.Itoa(p.Distance),
	)

	v.log.Debug("invoking renderer", "argv", strings.Join(argv, " "))
	cmd := exec.CommandContext(attemptCtx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	diag := truncate(string(out))

	if attemptCtx.Err() == context.DeadlineExceeded {
		return diag, errors.New(errors.CodeTimeout, "generation timed out").
			WithField("timeout", v.timeout.String())
	}
	if err != nil {
		return diag, err
	}
	return diag, nil
}

// newestPoster returns the most recently modified PNG in the posters
// directory, or "" when there is none.
func (v *Invoker) newestPoster() string {
	files, err := filepath.Glob(filepath.Join(v.postersDir, "*.png"))
	if err != nil || len(files) == 0 {
		return ""
	}
	newest := ""
	var newestMod time.Time
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			continue
		}
		if newest == "" || st.ModTime().After(newestMod) {
			newest = f
			newestMod = st.ModTime()
		}
	}
	return newest
}

func renderFailed(diag string) error {
	msg := strings.TrimSpace(diag)
	if msg == "" {
		msg = "generation failed"
	}
	return errors.New(errors.CodeRenderFailed, msg)
}

func truncate(s string) string {
	if len(s) > maxDiagnostics {
		return s[:maxDiagnostics]
	}
	return s
}
