package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
)

// Encode writes buf to a new playable file. WAV always succeeds given a
// writable store; other formats are best effort and fall back to the WAV file
// when the transcoder is missing or fails. Codec failures are only logged.
func (e *Engine) Encode(ctx context.Context, buf *model.Buffer, opts ...ports.Option) (model.AudioRef, error) {
	options := model.DefaultEncodeOptions()
	for _, o := range opts {
		o(options)
	}
	resolved := options.Resolve()
	if resolved.Dir == "" {
		resolved.Dir = e.outputDir
	}

	wavRef, err := e.encodeWAV(ctx, buf, resolved)
	if err != nil {
		return model.AudioRef{}, err
	}
	if resolved.Format.IsLossless() {
		return wavRef, nil
	}

	if e.transcoder == nil {
		e.warnFallback(resolved.Format, pkgerrors.NewEncodeFallbackWarning(string(resolved.Format), string(model.FormatWAV), nil))
		return wavRef, nil
	}

	outPath, err := e.storage.TempFile(ctx, resolved.Dir, "edit-*"+resolved.Format.Extension())
	if err != nil {
		e.warnFallback(resolved.Format, pkgerrors.NewEncodeFallbackWarning(string(resolved.Format), string(model.FormatWAV), err))
		return wavRef, nil
	}

	if err := e.transcoder.Transcode(ctx, wavRef.URL, outPath, resolved); err != nil {
		_ = e.storage.Remove(ctx, outPath)
		e.warnFallback(resolved.Format, pkgerrors.NewEncodeFallbackWarning(string(resolved.Format), string(model.FormatWAV), err))
		return wavRef, nil
	}

	size, err := e.storage.Size(ctx, outPath)
	if err != nil || size == 0 {
		_ = e.storage.Remove(ctx, outPath)
		e.warnFallback(resolved.Format, pkgerrors.NewEncodeFallbackWarning(string(resolved.Format), string(model.FormatWAV), err))
		return wavRef, nil
	}

	_ = e.storage.Remove(ctx, wavRef.URL)
	return model.AudioRef{
		URL:       outPath,
		Format:    resolved.Format,
		Duration:  buf.Duration(),
		Size:      size,
		CreatedAt: time.Now(),
	}, nil
}

func (e *Engine) encodeWAV(ctx context.Context, buf *model.Buffer, opts model.EncodeOptions) (model.AudioRef, error) {
	w, path, err := e.storage.Create(ctx, opts.Dir, "edit-*.wav")
	if err != nil {
		return model.AudioRef{}, pkgerrors.NewProcessingError("encode", "failed to create output", err)
	}

	if err := e.encoder.Encode(ctx, w, buf, opts.BitDepth); err != nil {
		w.Close()
		_ = e.storage.Remove(ctx, path)
		return model.AudioRef{}, pkgerrors.NewProcessingError("encode", "failed to write WAV", err)
	}
	if err := w.Close(); err != nil {
		_ = e.storage.Remove(ctx, path)
		return model.AudioRef{}, pkgerrors.NewProcessingError("encode", "failed to close output", err)
	}

	size, _ := e.storage.Size(ctx, path)
	return model.AudioRef{
		URL:       path,
		Format:    model.FormatWAV,
		Duration:  buf.Duration(),
		Size:      size,
		CreatedAt: time.Now(),
	}, nil
}

func (e *Engine) warnFallback(requested model.Format, warning *pkgerrors.EncodeFallbackWarning) {
	e.log.Warn("encode fell back to WAV",
		zap.String("requested", string(requested)),
		zap.Error(warning),
	)
}

// Dispose removes a produced reference. Missing files are ignored.
func (e *Engine) Dispose(ctx context.Context, ref model.AudioRef) error {
	if ref.IsZero() {
		return nil
	}
	return e.storage.Remove(ctx, ref.URL)
}
