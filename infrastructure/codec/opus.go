package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pion/opus"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"

	"github.com/Skryldev/audioedit/domain/model"
)

// ErrUnsupportedOpus is returned for packets the pure-Go decoder cannot handle
var ErrUnsupportedOpus = errors.New("unsupported opus packet")

// OggOpus decodes Ogg-encapsulated Opus with pion/opus. Only SILK frames with
// one packet per page are supported; callers fall back to ffmpeg otherwise.
type OggOpus struct{}

// NewOggOpus returns the Ogg/Opus decoder
func NewOggOpus() *OggOpus { return &OggOpus{} }

// CanDecode reports whether path looks like an Ogg or Opus file
func (o *OggOpus) CanDecode(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg", ".opus", ".oga":
		return true
	}
	return false
}

// Decode reads every audio page and decodes it
func (o *OggOpus) Decode(ctx context.Context, r io.ReadSeeker) (*model.Buffer, error) {
	reader, header, err := oggreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("ogg header: %w", err)
	}

	decoder := opus.NewDecoder()
	var (
		channels   = int(header.Channels)
		sampleRate int
		pcm        [][]float64
		preSkip    = int(header.PreSkip)
	)
	if channels <= 0 {
		channels = 1
	}
	pcm = make([][]float64, channels)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, _, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ogg page: %w", err)
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}

		frameSamples, err := silkFrameSamples(payload[0])
		if err != nil {
			return nil, err
		}
		stereo := payload[0]&0x04 != 0
		outChannels := 1
		if stereo {
			outChannels = 2
		}
		// sized for the widest bandwidth; trimmed below once the rate is known
		out := make([]byte, frameSamples*48*outChannels*2)
		bandwidth, isStereo, err := decoder.Decode(payload, out)
		if err != nil {
			return nil, fmt.Errorf("opus decode: %w", err)
		}

		rate := bandwidthRate(bandwidth)
		if sampleRate == 0 {
			sampleRate = rate
		}
		if isStereo {
			outChannels = 2
		} else {
			outChannels = 1
		}
		n := frameSamples * rate / 1000
		appendPCM(pcm, out, n, outChannels)
	}

	if sampleRate == 0 {
		return nil, errors.New("ogg stream has no audio pages")
	}

	// pre-skip is expressed at 48 kHz
	skip := preSkip * sampleRate / 48000
	buf := &model.Buffer{SampleRate: sampleRate, Channels: make([][]float64, channels)}
	for c := range pcm {
		if skip < len(pcm[c]) {
			buf.Channels[c] = pcm[c][skip:]
		} else {
			buf.Channels[c] = []float64{}
		}
	}
	return buf, nil
}

// silkFrameSamples returns the frame duration in ms encoded in a TOC byte
func silkFrameSamples(toc byte) (int, error) {
	config := int(toc >> 3)
	if config > 11 {
		return 0, fmt.Errorf("%w: config %d", ErrUnsupportedOpus, config)
	}
	if toc&0x03 != 0 {
		return 0, fmt.Errorf("%w: multi-frame packet", ErrUnsupportedOpus)
	}
	return []int{10, 20, 40, 60}[config%4], nil
}

func bandwidthRate(b opus.Bandwidth) int {
	switch b {
	case opus.BandwidthNarrowband:
		return 8000
	case opus.BandwidthMediumband:
		return 12000
	case opus.BandwidthWideband:
		return 16000
	case opus.BandwidthSuperwideband:
		return 24000
	default:
		return 48000
	}
}

// appendPCM converts n interleaved int16 LE frames and spreads them over dst
func appendPCM(dst [][]float64, raw []byte, n, srcChannels int) {
	for i := 0; i < n; i++ {
		for c := range dst {
			sc := c
			if sc >= srcChannels {
				sc = srcChannels - 1
			}
			off := (i*srcChannels + sc) * 2
			if off+1 >= len(raw) {
				return
			}
			v := int16(uint16(raw[off]) | uint16(raw[off+1])<<8)
			dst[c] = append(dst[c], float64(v)/32768)
		}
	}
}
