package ffmpeg

import (
	"strconv"
	"strings"
)

// FilterChainBuilder assembles the -af argument for an export. The engine
// already rendered every edit, so only format conversion filters live here.
type FilterChainBuilder struct {
	filters []string
}

func NewFilterChainBuilder() *FilterChainBuilder {
	return &FilterChainBuilder{}
}

// AddResample converts to hz; zero leaves the rate alone
func (b *FilterChainBuilder) AddResample(hz int) *FilterChainBuilder {
	if hz > 0 {
		b.filters = append(b.filters, "aresample="+strconv.Itoa(hz))
	}
	return b
}

// AddChannelLayout downmixes or upmixes to mono or stereo. Other counts are ignored.
func (b *FilterChainBuilder) AddChannelLayout(n int) *FilterChainBuilder {
	layout := map[int]string{1: "mono", 2: "stereo"}[n]
	if layout != "" {
		b.filters = append(b.filters, "aformat=channel_layouts="+layout)
	}
	return b
}

func (b *FilterChainBuilder) Build() string {
	return strings.Join(b.filters, ",")
}

func (b *FilterChainBuilder) IsEmpty() bool {
	return len(b.filters) == 0
}
