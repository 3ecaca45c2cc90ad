// Command coach-prep cleans a labeled essay corpus, encodes its overall
// scores and writes stratified train/val/test splits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"

	"github.com/jamesainslie/go-writecoach/blob"
	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/internal/config"
	"github.com/jamesainslie/go-writecoach/internal/report"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	prep := cfg.Prep

	var (
		corpusPath     = flag.String("corpus", prep.Corpus, "Corpus CSV with full_text and Overall columns")
		out            = flag.String("out", prep.Out, "Output directory or gs://bucket/prefix")
		seed           = flag.Uint64("seed", prep.Seed, "Shuffle seed")
		train          = flag.Float64("train", prep.Ratios.Train, "Train fraction")
		val            = flag.Float64("val", prep.Ratios.Validation, "Validation fraction")
		test           = flag.Float64("test", prep.Ratios.Test, "Test fraction")
		skipIncomplete = flag.Bool("skip-incomplete", prep.SkipIncomplete, "Drop rows without an Overall score instead of failing")
		force          = flag.Bool("force", false, "Overwrite splits made from different inputs")
		preview        = flag.Int("preview", 5, "Number of cleaned examples to print")
		verbose        = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	ctx = clog.WithLogger(ctx, clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	corpus, err := dataset.LoadCorpus(*corpusPath, dataset.CorpusOptions{SkipIncomplete: *skipIncomplete})
	if err != nil {
		var verr *dataset.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "invalid corpus %s: %v\n", *corpusPath, err)
		} else {
			fmt.Fprintf(os.Stderr, "error loading corpus: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Loaded %d essays from %s\n", len(corpus.Records), *corpusPath)
	if corpus.Skipped > 0 {
		fmt.Printf("Dropped %d rows without an Overall score\n", corpus.Skipped)
	}

	ratios := dataset.Ratios{Train: *train, Validation: *val, Test: *test}
	prepared, err := dataset.Prepare(corpus, ratios, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error preparing corpus: %v\n", err)
		os.Exit(1)
	}

	bucket, err := blob.Open(ctx, *out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening %s: %v\n", *out, err)
		os.Exit(1)
	}
	defer bucket.Close()

	manifest, err := dataset.NewMaterializer(bucket, corpus.Header).Force(*force).PersistAll(ctx, prepared)
	if err != nil {
		if errors.Is(err, dataset.ErrManifestMismatch) {
			fmt.Fprintf(os.Stderr, "%v\nrerun with -force to replace them\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "error writing splits: %v\n", err)
		}
		bucket.Close()
		os.Exit(1)
	}

	fmt.Printf("\nLabel distribution (seed %d, %d labels)\n\n", manifest.Seed, prepared.Labels.Len())
	if err := report.Distribution(os.Stdout, prepared); err != nil {
		fmt.Fprintf(os.Stderr, "error printing distribution: %v\n", err)
	}

	if *preview > 0 {
		fmt.Printf("\nCleaned examples\n\n")
		if err := report.Examples(os.Stdout, prepared.Splits.Train, *preview, 60); err != nil {
			fmt.Fprintf(os.Stderr, "error printing examples: %v\n", err)
		}
	}

	fmt.Printf("\nWrote splits to %s\n", bucket.URI(dataset.ManifestFile))
}
