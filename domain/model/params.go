package model

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"time"
)

// EditType identifies an independently appliable edit
type EditType string

const (
	EditTrim           EditType = "trim"
	EditEnhance        EditType = "enhance"
	EditNoiseReduction EditType = "noise-reduction"
	EditNormalize      EditType = "normalize"
	EditEffects        EditType = "effects"
	EditSubtitles      EditType = "subtitles"
	EditAll            EditType = "all"
)

// EditMode is the editor panel currently in focus
type EditMode string

const (
	ModeNone           EditMode = ""
	ModeTrim           EditMode = "trim"
	ModeEnhance        EditMode = "enhance"
	ModeNoiseReduction EditMode = "noise-reduction"
	ModeNormalize      EditMode = "normalize"
	ModeEffects        EditMode = "effects"
	ModeSubtitles      EditMode = "subtitles"
	ModeExport         EditMode = "export"
	ModeHistory        EditMode = "history"
)

// EffectName names one of the serial effects
type EffectName string

const (
	EffectReverb  EffectName = "reverb"
	EffectEQVoice EffectName = "eq-voice"
	EffectBoost   EffectName = "boost"
	EffectWarmth  EffectName = "warmth"
	EffectClarity EffectName = "clarity"
)

// EffectOrder is the fixed serial order effects are applied in
var EffectOrder = []EffectName{EffectReverb, EffectEQVoice, EffectBoost, EffectWarmth, EffectClarity}

// IsKnown reports whether the effect is one of EffectOrder
func (e EffectName) IsKnown() bool {
	for _, n := range EffectOrder {
		if n == e {
			return true
		}
	}
	return false
}

// Trim bounds in seconds
type Trim struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// Enhancement sliders, 0-100 with 50 neutral
type Enhancement struct {
	VoiceClarity int `json:"voiceClarity"`
	BassTone     int `json:"bassTone"`
	MidTone      int `json:"midTone"`
	TrebleTone   int `json:"trebleTone"`
	Presence     int `json:"presence"`
}

// NoiseReduction sliders, 0-100
type NoiseReduction struct {
	Strength      int `json:"strength"`
	Sensitivity   int `json:"sensitivity"`
	PreserveVoice int `json:"preserveVoice"`
}

// Effects maps an effect to its intensity 0-100
type Effects map[EffectName]int

// Clone copies the map
func (e Effects) Clone() Effects {
	out := make(Effects, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// SubtitlePosition places a caption
type SubtitlePosition string

const (
	PositionTop    SubtitlePosition = "top"
	PositionMiddle SubtitlePosition = "middle"
	PositionBottom SubtitlePosition = "bottom"
)

// SubtitleStyle is rendering metadata carried for the caller
type SubtitleStyle struct {
	FontFamily      string  `json:"fontFamily"`
	FontSize        int     `json:"fontSize"`
	Color           string  `json:"color"`
	FontWeight      int     `json:"fontWeight"`
	BackgroundColor string  `json:"backgroundColor"`
	Opacity         float64 `json:"opacity"`
}

// DefaultSubtitleStyle is applied to new subtitles
func DefaultSubtitleStyle() SubtitleStyle {
	return SubtitleStyle{
		FontFamily:      "Arial",
		FontSize:        16,
		Color:           "#FFFFFF",
		FontWeight:      400,
		BackgroundColor: "rgba(0, 0, 0, 0.5)",
		Opacity:         1,
	}
}

// Subtitle is a timed caption. Overlap is not enforced.
type Subtitle struct {
	ID        string           `json:"id"`
	StartTime float64          `json:"startTime"`
	EndTime   float64          `json:"endTime"`
	Text      string           `json:"text"`
	Position  SubtitlePosition `json:"position"`
	Style     SubtitleStyle    `json:"style"`
}

// EditParameters is the complete edit configuration. It is a value: use Clone
// before handing it to another component.
type EditParameters struct {
	Trim            Trim           `json:"trim"`
	Enhancement     Enhancement    `json:"enhancement"`
	NoiseReduction  NoiseReduction `json:"noiseReduction"`
	VolumeNormalize int            `json:"volumeNormalize"`
	Effects         Effects        `json:"effects"`
	Subtitles       []Subtitle     `json:"subtitles"`
	ShowSubtitles   bool           `json:"showSubtitles"`
	ActiveEditMode  EditMode       `json:"activeEditMode"`
	TimelineZoom    float64        `json:"timelineZoom"`
	ExportFormat    Format         `json:"exportFormat"`
	ExportQuality   Quality        `json:"exportQuality"`
}

// Neutral values
const (
	NeutralSlider             = 50
	DefaultNoiseStrength      = 50
	DefaultNoiseSensitivity   = 50
	DefaultNoisePreserveVoice = 75
	MinTimelineZoom           = 0.1
	MaxTimelineZoom           = 5.0
)

// DefaultEnhancement returns neutral enhancement sliders
func DefaultEnhancement() Enhancement {
	return Enhancement{
		VoiceClarity: NeutralSlider,
		BassTone:     NeutralSlider,
		MidTone:      NeutralSlider,
		TrebleTone:   NeutralSlider,
		Presence:     NeutralSlider,
	}
}

// DefaultNoiseReduction returns the default profile
func DefaultNoiseReduction() NoiseReduction {
	return NoiseReduction{
		Strength:      DefaultNoiseStrength,
		Sensitivity:   DefaultNoiseSensitivity,
		PreserveVoice: DefaultNoisePreserveVoice,
	}
}

// DefaultEffects returns all effects disabled
func DefaultEffects() Effects {
	e := make(Effects, len(EffectOrder))
	for _, n := range EffectOrder {
		e[n] = 0
	}
	return e
}

// DefaultEditParameters returns neutral parameters for a source of the given duration
func DefaultEditParameters(duration float64) EditParameters {
	return EditParameters{
		Trim:           Trim{StartTime: 0, EndTime: duration},
		Enhancement:    DefaultEnhancement(),
		NoiseReduction: DefaultNoiseReduction(),
		Effects:        DefaultEffects(),
		Subtitles:      []Subtitle{},
		ShowSubtitles:  true,
		TimelineZoom:   1,
		ExportFormat:   FormatMP3,
		ExportQuality:  QualityHigh,
	}
}

// Clone deep-copies the parameters
func (p EditParameters) Clone() EditParameters {
	out := p
	out.Effects = p.Effects.Clone()
	out.Subtitles = append([]Subtitle{}, p.Subtitles...)
	return out
}

// ClampSlider clamps v into [0, 100]
func ClampSlider(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Clamp returns the enhancement with every slider in range
func (e Enhancement) Clamp() Enhancement {
	return Enhancement{
		VoiceClarity: ClampSlider(e.VoiceClarity),
		BassTone:     ClampSlider(e.BassTone),
		MidTone:      ClampSlider(e.MidTone),
		TrebleTone:   ClampSlider(e.TrebleTone),
		Presence:     ClampSlider(e.Presence),
	}
}

// IsNeutral reports whether every slider sits at 50
func (e Enhancement) IsNeutral() bool {
	return e == DefaultEnhancement()
}

// Clamp returns the profile with every slider in range
func (n NoiseReduction) Clamp() NoiseReduction {
	return NoiseReduction{
		Strength:      ClampSlider(n.Strength),
		Sensitivity:   ClampSlider(n.Sensitivity),
		PreserveVoice: ClampSlider(n.PreserveVoice),
	}
}

// IsDefault reports whether the profile equals the defaults, in which case no
// noise reduction is performed
func (n NoiseReduction) IsDefault() bool {
	return n == DefaultNoiseReduction()
}

// HasActive reports whether any effect intensity is above zero
func (e Effects) HasActive() bool {
	for _, v := range e {
		if v > 0 {
			return true
		}
	}
	return false
}

// IsFullLength reports whether the trim covers [0, duration]
func (t Trim) IsFullLength(duration float64) bool {
	return t.StartTime <= 0 && t.EndTime >= duration
}

// Length returns the trimmed length in seconds
func (t Trim) Length() float64 { return t.EndTime - t.StartTime }

// Fingerprint is a stable hash of the parameters that influence editType
func (p EditParameters) Fingerprint(editType EditType) string {
	var v any
	switch editType {
	case EditTrim:
		v = p.Trim
	case EditEnhance:
		v = p.Enhancement
	case EditNoiseReduction:
		v = p.NoiseReduction
	case EditNormalize:
		v = p.VolumeNormalize
	case EditEffects:
		v = sortedEffects(p.Effects)
	case EditSubtitles:
		v = p.Subtitles
	default:
		v = struct {
			Trim            Trim
			Enhancement     Enhancement
			NoiseReduction  NoiseReduction
			VolumeNormalize int
			Effects         [][2]any
			Subtitles       []Subtitle
			ShowSubtitles   bool
		}{p.Trim, p.Enhancement, p.NoiseReduction, p.VolumeNormalize, sortedEffects(p.Effects), p.Subtitles, p.ShowSubtitles}
	}
	data, _ := json.Marshal(v)
	h := fnv.New64a()
	_, _ = h.Write([]byte(editType))
	_, _ = h.Write(data)
	return strconv.FormatUint(h.Sum64(), 36)
}

func sortedEffects(e Effects) [][2]any {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	out := make([][2]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]any{k, e[EffectName(k)]})
	}
	return out
}

// HistoryEntry is an immutable snapshot of the parameters
type HistoryEntry struct {
	Params     EditParameters `json:"params"`
	Timestamp  time.Time      `json:"timestamp"`
	ActionType string         `json:"actionType"`
}

// RoundSeconds rounds to the nearest millisecond, used when comparing trim bounds
func RoundSeconds(v float64) float64 {
	return math.Round(v*1000) / 1000
}
