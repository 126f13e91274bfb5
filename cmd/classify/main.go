package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/mlserver"
	"github.com/menta2k/mlserver/internal/config"
	"github.com/menta2k/mlserver/internal/logging"
	"github.com/menta2k/mlserver/internal/utils"
	"github.com/menta2k/mlserver/pkg/plugin"
	"github.com/menta2k/mlserver/pkg/registry"
	"github.com/menta2k/mlserver/pkg/types"
)

type fileResult struct {
	File        string             `json:"file"`
	Predictions []plugin.Formatted `json:"predictions,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type options struct {
	configDir, pluginName, in, outDir string
	x, y, workers, size               int
	describe, runTransform, debug     bool
}

func main() {
	var opts options

	flag.StringVar(&opts.configDir, "config", config.GetConfigPath(), "directory holding app.json")
	flag.StringVar(&opts.pluginName, "plugin", "builtinColors", "plugin name from the config")
	flag.StringVar(&opts.in, "in", "", "input image or directory of images")
	flag.IntVar(&opts.x, "x", -1, "mark x in percent of width (0-100), -1 for none")
	flag.IntVar(&opts.y, "y", -1, "mark y in percent of height (0-100), -1 for none")
	flag.IntVar(&opts.workers, "workers", 4, "images classified in parallel for a directory input")
	flag.BoolVar(&opts.describe, "describe", false, "print plugin metadata")

	flag.BoolVar(&opts.runTransform, "transform", false, "write transformer artefacts for -in instead of classifying")
	flag.StringVar(&opts.outDir, "out", "", "artefact directory, defaults to the input directory")
	flag.IntVar(&opts.size, "size", 299, "artefact resize target (square)")
	flag.BoolVar(&opts.debug, "debug", false, "also write a debug overlay of the crop box")

	flag.Parse()

	if err := logging.FromEnv(); err != nil {
		log.Fatal(err)
	}
	if opts.in == "" && !opts.describe {
		log.Fatalf("usage: %s -in image.png|dir [-plugin name] [-x 50 -y 50] [-describe] [-transform [-out dir] [-debug]]", filepath.Base(os.Args[0]))
	}

	if err := run(context.Background(), opts); err != nil {
		log.Fatal(err)
	}
}

// markPoint turns the -x/-y flags into a mark. Both negative means no mark;
// giving only one of them is an error.
func markPoint(x, y int) (*types.Point, error) {
	switch {
	case x < 0 && y < 0:
		return nil, nil
	case x < 0 || y < 0:
		return nil, fmt.Errorf("-x and -y must be given together, got x=%d y=%d", x, y)
	}
	return &types.Point{X: x, Y: y}, nil
}

func run(ctx context.Context, opts options) error {
	point, err := markPoint(opts.x, opts.y)
	if err != nil {
		return err
	}

	if opts.runTransform {
		mark := types.Point{X: 50, Y: 50}
		if point != nil {
			mark = *point
		}
		paths, err := writeArtefacts(opts.in, artefactOptions{OutDir: opts.outDir, Mark: mark, CropFactor: 0.4, Size: opts.size, Debug: opts.debug})
		if err != nil {
			return err
		}
		for _, p := range paths {
			log.Infof("wrote %s", p)
		}
		return nil
	}

	cfg, err := config.Resolve(opts.configDir)
	if err != nil {
		return err
	}
	entry, ok := findEntry(cfg.Plugins, opts.pluginName)
	if !ok {
		return fmt.Errorf("plugin %q is not configured", opts.pluginName)
	}
	entry.Optional = false
	cfg.Plugins = []registry.Entry{entry}

	srv, err := mlserver.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	if opts.describe {
		p, err := srv.Registry().Lookup(opts.pluginName)
		if err != nil {
			return err
		}
		if err := printDescription(p); err != nil {
			return err
		}
		if opts.in == "" {
			return nil
		}
	}

	var files []string
	switch {
	case utils.DirExists(opts.in):
		if files, err = utils.ListImageFiles(opts.in); err != nil {
			return err
		}
	case utils.FileExists(opts.in):
		files = []string{opts.in}
	default:
		return fmt.Errorf("%s is neither an image nor a directory", opts.in)
	}

	results := classifyAll(ctx, srv.Dispatcher(), opts.pluginName, files, point, opts.workers)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func findEntry(entries []registry.Entry, name string) (registry.Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return registry.Entry{}, false
}

// classifyAll classifies files with at most workers in flight. Per-file
// errors are reported in the result instead of stopping the batch.
func classifyAll(ctx context.Context, d *registry.Dispatcher, name string, files []string, point *types.Point, workers int) []fileResult {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, file := range files {
		g.Go(func() error {
			payload := registry.Payload{Source: types.Source{Path: file}}
			if point != nil {
				payload.X, payload.Y = &point.X, &point.Y
			}
			results[i].File = file
			predictions, err := d.Classify(ctx, name, payload)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Predictions = plugin.Format(predictions)
			return nil
		})
	}
	g.Wait()
	return results
}

func printDescription(p registry.Plugin) error {
	fmt.Printf("Name: %s\n", p.Name())
	pl, ok := p.(*plugin.Plugin)
	if !ok {
		return nil
	}
	fmt.Printf("Description: %s\n", pl.Description())
	fmt.Printf("Labels: %d\n", len(pl.Labels()))

	js, err := json.MarshalIndent(pl.Descriptor(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("Metadata:\n%s\n", js)
	return nil
}
