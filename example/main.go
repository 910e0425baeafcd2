package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/Skryldev/audioedit"
	"github.com/Skryldev/audioedit/pkg/logger"
)

type cli struct {
	Input string `arg:"" type:"existingfile" help:"WAV or Ogg/Opus file to edit." env:"AUDIOEDIT_INPUT"`

	Start float64 `help:"Trim start in seconds."`
	End   float64 `help:"Trim end in seconds. 0 keeps the full length."`

	VoiceClarity int `default:"50" help:"Voice clarity 0-100, 50 is neutral."`
	Bass         int `default:"50" help:"Bass tone 0-100."`
	Mid          int `default:"50" help:"Mid tone 0-100."`
	Treble       int `default:"50" help:"Treble tone 0-100."`
	Presence     int `default:"50" help:"Presence 0-100."`

	NoiseStrength    int `default:"50" help:"Noise reduction strength 0-100."`
	NoiseSensitivity int `default:"50" help:"Noise gate sensitivity 0-100."`
	PreserveVoice    int `default:"75" help:"How much of the voice band to keep 0-100."`

	Normalize int            `default:"0" help:"Loudness normalization level 0-100, 0 disables."`
	Effect    map[string]int `help:"Effect intensities, e.g. --effect reverb=30 --effect warmth=60."`

	Format  string `default:"wav" enum:"mp3,wav,ogg,opus,aac" help:"Export format."`
	Quality string `default:"high" enum:"low,medium,high" help:"Export quality."`
	Out     string `short:"o" help:"Where to write the export. Printed but left in the storage dir when empty."`

	StorageDir  string `env:"AUDIOEDIT_STORAGE_DIR" help:"Directory for rendered results."`
	AutoSaveDir string `env:"AUDIOEDIT_AUTOSAVE_DIR" help:"Directory for auto-save documents."`
	FFmpeg      string `env:"AUDIOEDIT_FFMPEG" help:"Path to ffmpeg."`
	FFprobe     string `env:"AUDIOEDIT_FFPROBE" help:"Path to ffprobe."`
	NoFFmpeg    bool   `help:"Use native codecs only."`
	Debug       bool   `env:"AUDIOEDIT_DEBUG" help:"Development logging."`
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var args cli
	kctx := kong.Parse(&args,
		kong.Name("audioedit"),
		kong.Description("Apply trim, enhancement, noise reduction, normalization and effects to an audio file."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kctx.FatalIfErrorf(run(ctx, args))
}

func run(ctx context.Context, args cli) error {
	log, err := logger.New(args.Debug)
	if err != nil {
		return err
	}

	progressCh := make(chan audioedit.ProgressUpdate, 32)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for upd := range progressCh {
			fmt.Printf("  stage=%-16s %3.0f%%  %s\n", upd.Stage, upd.Percent, upd.Message)
		}
	}()

	editor, err := audioedit.New(audioedit.Config{
		FFmpegPath:    args.FFmpeg,
		FFprobePath:   args.FFprobe,
		DisableFFmpeg: args.NoFFmpeg,
		Logger:        log,
		ProgressCh:    progressCh,
		StorageDir:    args.StorageDir,
		AutoSaveDir:   args.AutoSaveDir,
	})
	if err != nil {
		close(progressCh)
		return fmt.Errorf("creating editor: %w", err)
	}
	defer func() {
		_ = editor.Close()
		close(progressCh)
		<-printed
	}()

	session, err := editor.NewSession(audioedit.SessionOptions{})
	if err != nil {
		return err
	}
	defer session.Close()

	unsubscribe := session.Subscribe(func(ev audioedit.Event) {
		switch ev.Type {
		case audioedit.EventApplied:
			fmt.Printf("applied %s -> %s\n", ev.EditType, ev.Ref.URL)
		case audioedit.EventSaved:
			fmt.Println("edits saved")
		}
	})
	defer unsubscribe()

	asset := audioedit.AudioAsset{ID: filepath.Base(args.Input), URL: args.Input}
	if err := session.InitSession(ctx, asset); err != nil {
		return err
	}
	fmt.Printf("loaded %s (%.2fs)\n", args.Input, session.Duration())

	if err := applyArgs(session, args); err != nil {
		return err
	}

	fmt.Printf("pending: %v\n", session.PendingChanges())
	fmt.Printf("estimated export size: %.0f KB (max duration %s)\n",
		session.EstimatedFileSizeKB(), session.MaxDuration())

	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := session.SaveEdits(saveCtx); err != nil {
		return fmt.Errorf("saving edits: %w", err)
	}

	res, err := session.PrepareExport(saveCtx)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}

	out := res.Ref.URL
	if args.Out != "" {
		if err := os.Rename(res.Ref.URL, args.Out); err != nil {
			return fmt.Errorf("moving export: %w", err)
		}
		out = args.Out
	}
	fmt.Printf("exported %s %s (%.2fs, %d bytes) to %s\n",
		res.Ref.Format, res.Quality, res.Ref.Duration, res.Ref.Size, out)
	return nil
}

func applyArgs(s *audioedit.Session, args cli) error {
	if args.End > 0 || args.Start > 0 {
		end := args.End
		if end <= 0 {
			end = s.Duration()
		}
		if err := s.SetTrim(args.Start, end); err != nil {
			return err
		}
	}

	if err := s.SetEnhancement(audioedit.Enhancement{
		VoiceClarity: args.VoiceClarity,
		BassTone:     args.Bass,
		MidTone:      args.Mid,
		TrebleTone:   args.Treble,
		Presence:     args.Presence,
	}); err != nil {
		return err
	}

	if err := s.SetNoiseReduction(audioedit.NoiseReduction{
		Strength:      args.NoiseStrength,
		Sensitivity:   args.NoiseSensitivity,
		PreserveVoice: args.PreserveVoice,
	}); err != nil {
		return err
	}

	if err := s.SetVolumeNormalize(args.Normalize); err != nil {
		return err
	}

	for name, intensity := range args.Effect {
		if err := s.SetEffect(audioedit.EffectName(name), intensity); err != nil {
			return err
		}
	}

	if err := s.SetExportFormat(audioedit.Format(args.Format)); err != nil {
		return err
	}
	return s.SetExportQuality(audioedit.Quality(args.Quality))
}
