package pipeline

import (
	"context"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/pkg/dsp"
)

// NormalizeTarget maps a 0-100 level to a target peak in [0.1, 1]
func NormalizeTarget(level int) float64 {
	return 0.1 + float64(model.ClampSlider(level))/100*0.9
}

// Normalize scales buf so its peak sits at NormalizeTarget(level).
// Silence is returned unchanged.
func (e *Engine) Normalize(ctx context.Context, buf *model.Buffer, level int) (*model.Buffer, error) {
	peak := buf.Peak()
	if peak == 0 {
		return buf.Clone(), nil
	}
	return e.Apply(ctx, buf, dsp.Gain(NormalizeTarget(level)/peak))
}
