package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
	"github.com/Skryldev/audioedit/pkg/logger"
	"go.uber.org/zap"
)

// Executor runs the ffmpeg and ffprobe binaries. It is only constructed when
// both are found, so its presence doubles as the ffmpeg capability flag.
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	log         *logger.Logger
}

// ExecutorConfig holds configuration for the FFmpeg executor
type ExecutorConfig struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *logger.Logger
}

// NewExecutor creates a new FFmpeg executor
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		var err error
		ffmpegPath, err = exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
	}

	ffprobePath := cfg.FFprobePath
	if ffprobePath == "" {
		var err error
		ffprobePath, err = exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         log,
	}, nil
}

// baseArgs keep ffmpeg quiet and non-interactive
var baseArgs = []string{"-hide_banner", "-nostdin", "-loglevel", "error"}

// Execute runs ffmpeg with the given arguments
func (e *Executor) Execute(ctx context.Context, args []string) error {
	full := append(append([]string{}, baseArgs...), args...)
	_, err := e.run(ctx, e.ffmpegPath, full, false)
	return err
}

// Probe runs ffprobe and returns its JSON report
func (e *Executor) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	return e.run(ctx, e.ffprobePath, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}, true)
}

func (e *Executor) run(ctx context.Context, bin string, args []string, captureStdout bool) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	if captureStdout {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	e.log.Debug("external tool finished",
		zap.String("tool", filepath.Base(bin)),
		zap.Strings("args", args),
		zap.Duration("took", time.Since(started)),
		zap.Bool("ok", err == nil),
	)
	if err == nil {
		return stdout.Bytes(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return nil, pkgerrors.NewFFmpegError(
		filepath.Base(bin)+" execution failed",
		args,
		exitCode,
		strings.TrimSpace(stderr.String()),
		err,
	)
}
