// Command mozzaic pixelates one video file with temporally stable colors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/db"
	"github.com/banshee-data/mozzaic/internal/palette"
	"github.com/banshee-data/mozzaic/internal/pixelate"
	"github.com/banshee-data/mozzaic/internal/report"
	"github.com/banshee-data/mozzaic/internal/version"
)

type options struct {
	In          string
	Out         string
	ConfigPath  string
	Width       int
	K           int
	Alpha       float64
	Codec       string
	FlowBackend string
	Palette     string
	DBPath      string
	PlotPath    string
	Seed        uint64
	ShowVersion bool
	// set records which flags were given explicitly
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("mozzaic", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.In, "in", "", "Input video file")
	fs.StringVar(&o.Out, "out", "", "Output video file (default pixel_<input name> next to the input)")
	fs.StringVar(&o.ConfigPath, "config", "", "JSON config file; flags override its values")
	fs.IntVar(&o.Width, "width", 320, "Output width in pixels")
	fs.IntVar(&o.K, "k", 8, "Colors per frame")
	fs.Float64Var(&o.Alpha, "alpha", 0.7, "Weight of the motion-compensated previous frame (0..1)")
	fs.StringVar(&o.Codec, "codec", "mp4v", "Output four-character codec")
	fs.StringVar(&o.FlowBackend, "flow", "farneback", "Optical flow backend: farneback, or opencv in gocv builds")
	fs.StringVar(&o.Palette, "palette", "", "Comma-separated hex colors to snap output onto, e.g. #000,#fff")
	fs.StringVar(&o.DBPath, "db", "", "SQLite run history database (disabled when empty)")
	fs.StringVar(&o.PlotPath, "plot", "", "Write a flicker/flow PNG plot to this path")
	fs.Uint64Var(&o.Seed, "seed", 0, "Clustering seed; 0 picks a random one")
	fs.BoolVar(&o.ShowVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if o.ShowVersion {
		return &o, nil
	}
	if o.In == "" {
		return nil, errors.New("-in is required")
	}
	if o.Out == "" {
		o.Out = defaultOutput(o.In)
	}
	return &o, nil
}

// buildConfig layers the config file and explicitly set flags over the
// built-in defaults.
func buildConfig(o *options) (*config.PixelateConfig, error) {
	cfg := config.DefaultPixelateConfig()
	if o.ConfigPath != "" {
		fileCfg, err := config.LoadPixelateConfig(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(fileCfg)
	}

	override := config.EmptyPixelateConfig()
	if o.set["width"] {
		override.TargetWidth = &o.Width
	}
	if o.set["k"] {
		override.K = &o.K
	}
	if o.set["alpha"] {
		override.FlowAlpha = &o.Alpha
	}
	if o.set["codec"] {
		override.Codec = &o.Codec
	}
	if o.set["flow"] {
		override.FlowBackend = &o.FlowBackend
	}
	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, o *options, stdout io.Writer) error {
	cfg, err := buildConfig(o)
	if err != nil {
		return err
	}
	p, err := pixelate.NewPipeline(cfg)
	if err != nil {
		return err
	}
	if o.Seed != 0 {
		p.Quantizer.Seed(o.Seed)
	}
	if o.Palette != "" {
		colors, err := palette.ParseHex(o.Palette)
		if err != nil {
			return err
		}
		pal, err := palette.New(colors)
		if err != nil {
			return err
		}
		p.PostProcess = pal.Apply
	}

	var rec *db.RunRecorder
	if o.DBPath != "" {
		database, err := db.NewDB(o.DBPath)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer database.Close()
		rec, err = database.NewRunRecorder(&db.Run{
			Input:       o.In,
			Output:      o.Out,
			TargetWidth: cfg.GetTargetWidth(),
			K:           cfg.GetK(),
			FlowAlpha:   cfg.GetFlowAlpha(),
		})
		if err != nil {
			return err
		}
		p.Observer = rec
	}

	rep, err := p.ProcessFile(ctx, o.In, o.Out, cfg.GetCodec())
	if rec != nil {
		if ferr := rec.Finish(rep, err); ferr != nil {
			log.Printf("failed to record run: %v", ferr)
		}
	}
	if err != nil {
		return err
	}
	if rep.Interrupted {
		log.Printf("input ended early after %d frames: %v", rep.Frames, rep.ReadErr)
	}

	if o.PlotPath != "" {
		if err := report.PlotFlicker(rep.Stats, o.PlotPath); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Output  string           `json:"output"`
		RunID   string           `json:"run_id,omitempty"`
		Summary pixelate.Summary `json:"summary"`
	}{o.Out, runID(rec), pixelate.Summarize(rep.Stats)})
}

// defaultOutput places pixel_<name> next to the input, falling back to .mp4
// when the input has no extension.
func defaultOutput(in string) string {
	dir, base := filepath.Split(in)
	if filepath.Ext(base) == "" {
		base += ".mp4"
	}
	return filepath.Join(dir, "pixel_"+base)
}

func runID(rec *db.RunRecorder) string {
	if rec == nil {
		return ""
	}
	return rec.RunID()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		os.Exit(migrateMain(os.Args[2:]))
	}

	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	if o.ShowVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func migrateMain(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", "mozzaic.db", "SQLite run history database")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := db.RunMigrateCommand(fs.Args(), *dbPath, os.Stdout); err != nil {
		log.Print(err)
		return 1
	}
	return 0
}
