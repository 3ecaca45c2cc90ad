// Command coach-bench evaluates the level classifier and rubric scorer on a
// prepared split.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"

	"github.com/jamesainslie/go-writecoach/blob"
	"github.com/jamesainslie/go-writecoach/inference"
	"github.com/jamesainslie/go-writecoach/internal/bench"
	"github.com/jamesainslie/go-writecoach/internal/config"
	"github.com/jamesainslie/go-writecoach/internal/report"
	"github.com/jamesainslie/go-writecoach/scoring"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	var (
		dataDir       = flag.String("data", cfg.Prep.Out, "Prepared split directory or gs://bucket/prefix")
		split         = flag.String("split", "test", "Split to evaluate: train, val or test")
		levelModel    = flag.String("level-model", cfg.Level.ModelPath, "Level classifier ONNX model")
		levelVocab    = flag.String("level-vocab", cfg.Level.VocabPath, "Level classifier vocab.txt")
		scorerModel   = flag.String("scorer-model", cfg.Scoring.ModelPath, "Rubric scorer ONNX model")
		tokenizerPath = flag.String("tokenizer", cfg.Scoring.TokenizerPath, "Rubric scorer tokenizer")
		rubric        = flag.Bool("rubric", false, "Also evaluate the rubric scorer against rubric columns")
		ortLib        = flag.String("ort-lib", cfg.Scoring.ONNXLibrary, "ONNX Runtime shared library")
		limit         = flag.Int("limit", 0, "Evaluate at most this many samples (0 = all)")
		confusion     = flag.Bool("confusion", false, "Print the confusion matrix")
	)
	flag.Parse()

	ctx = clog.WithLogger(ctx, clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if *ortLib != "" {
		inference.SetLibraryPath(*ortLib)
	}

	bucket, err := blob.Open(ctx, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening %s: %v\n", *dataDir, err)
		os.Exit(1)
	}
	samples, labels, err := bench.LoadSplit(ctx, bucket, *split)
	_ = bucket.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading split: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d %s samples from %s (%d labels)\n\n", len(samples), *split, *dataDir, labels.Len())

	scale := cfg.Scoring.Scale.Scale()
	bc := bench.Config{Scale: scale, Limit: *limit}

	if *levelModel != "" {
		if *levelVocab == "" {
			fmt.Fprintln(os.Stderr, "error: -level-vocab required with -level-model")
			os.Exit(1)
		}
		lvl, err := scoring.NewLevelEstimator(*levelModel, *levelVocab, labels, scoring.WithMaxTokens(cfg.Scoring.MaxTokens))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading level model: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = lvl.Close() }()
		bc.Level = lvl
	}

	if *rubric {
		sc, err := scoring.NewONNXScorer(*scorerModel, *tokenizerPath,
			scoring.WithScale(scale),
			scoring.WithMaxTokens(cfg.Scoring.MaxTokens),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading scorer: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = sc.Close() }()
		bc.Scorer = sc
	}

	if bc.Level == nil && bc.Scorer == nil {
		fmt.Fprintln(os.Stderr, "error: nothing to evaluate; set -level-model or -rubric")
		flag.Usage()
		os.Exit(1)
	}

	res, err := bench.Run(ctx, samples, labels, bc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error during evaluation: %v\n", err)
		os.Exit(1)
	}

	if res.Level != nil {
		fmt.Println("Level classification")
		fmt.Println()
		if err := report.Levels(os.Stdout, *res.Level); err != nil {
			fmt.Fprintf(os.Stderr, "error printing results: %v\n", err)
		}
		if *confusion {
			fmt.Println()
			if err := report.Confusion(os.Stdout, *res.Level, labels.Scores()); err != nil {
				fmt.Fprintf(os.Stderr, "error printing confusion matrix: %v\n", err)
			}
		}
		fmt.Println()
	}
	if len(res.Rubric) > 0 {
		fmt.Println("Rubric scoring")
		fmt.Println()
		if err := report.Rubric(os.Stdout, res.Rubric); err != nil {
			fmt.Fprintf(os.Stderr, "error printing results: %v\n", err)
		}
		fmt.Println()
	}
	fmt.Printf("Evaluated %d samples in %s\n", res.Samples, res.Duration.Round(1e6))
}
