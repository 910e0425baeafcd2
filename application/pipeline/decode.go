package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/infrastructure/codec"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
)

func (e *Engine) decode(ctx context.Context, sourceURL string) (*model.Buffer, error) {
	path := localPath(sourceURL)

	exists, err := e.storage.Exists(ctx, path)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(sourceURL, "failed to check source", err)
	}
	if !exists {
		return nil, pkgerrors.NewDecodeError(sourceURL, "source does not exist", nil)
	}

	var nativeErr error
	if dec := e.decoderFor(path); dec != nil {
		buf, err := e.decodeWith(ctx, dec, path)
		if err == nil {
			return buf, nil
		}
		nativeErr = err
		e.log.Debug("native decode failed", zap.String("source", sourceURL), zap.Error(err))
	}

	if e.transcoder == nil {
		if nativeErr == nil {
			nativeErr = fmt.Errorf("no decoder for %s", path)
		}
		return nil, pkgerrors.NewDecodeError(sourceURL, "could not load audio", nativeErr)
	}

	buf, err := e.decodeViaTranscoder(ctx, path)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(sourceURL, "could not load audio", err)
	}
	return buf, nil
}

func (e *Engine) decoderFor(path string) ports.Decoder {
	for _, d := range e.decoders {
		if d.CanDecode(path) {
			return d
		}
	}
	return nil
}

func (e *Engine) decodeWith(ctx context.Context, dec ports.Decoder, path string) (*model.Buffer, error) {
	r, err := e.storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf, err := dec.Decode(ctx, r)
	if err != nil {
		return nil, err
	}
	if buf.SampleRate <= 0 || buf.Len() == 0 {
		return nil, fmt.Errorf("decoded audio is empty")
	}
	return buf, nil
}

func (e *Engine) decodeViaTranscoder(ctx context.Context, path string) (*model.Buffer, error) {
	tmp, err := e.storage.TempFile(ctx, e.outputDir, "decode-*.wav")
	if err != nil {
		return nil, err
	}
	defer e.storage.Remove(ctx, tmp)

	if err := e.transcoder.DecodeToWAV(ctx, path, tmp); err != nil {
		return nil, err
	}
	return e.decodeWith(ctx, codec.NewWAV(), tmp)
}
