package pipeline

import (
	"context"
	"math"

	"github.com/Skryldev/audioedit/domain/model"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
)

// Trim copies [start, end) seconds of buf verbatim. end is clamped to the
// buffer duration; the result holds round((end-start)*sampleRate) frames.
func (e *Engine) Trim(ctx context.Context, buf *model.Buffer, start, end float64) (*model.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if start < 0 {
		return nil, pkgerrors.NewInvalidRangeError(start, end, "start must not be negative")
	}
	if end <= start {
		return nil, pkgerrors.NewInvalidRangeError(start, end, "end must be after start")
	}

	sr := float64(buf.SampleRate)
	startSample := int(math.Round(start * sr))
	if startSample >= buf.Len() {
		return nil, pkgerrors.NewInvalidRangeError(start, end, "start is beyond the end of the audio")
	}

	end = math.Min(end, buf.Duration())
	length := int(math.Round((end - start) * sr))
	if startSample+length > buf.Len() {
		length = buf.Len() - startSample
	}
	return buf.Slice(startSample, length), nil
}
