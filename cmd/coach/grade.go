package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/internal/history"
	"github.com/jamesainslie/go-writecoach/internal/report"
)

const rule = "=================================================="

type gradeOptions struct {
	file       string
	scoresFile string
	json       bool
}

func newGradeCommand(root *rootOptions) *cobra.Command {
	opts := &gradeOptions{}
	cmd := &cobra.Command{
		Use:   "grade [essay text]",
		Short: "Grade one essay and save the feedback record",
		Long: `Grade one essay. The text comes from the arguments, from --file, or is
typed interactively and ends at the first empty line.

Exit status is 0 on success or when no text was given, 1 when grading
failed, and 2 when scores were produced but feedback was not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrade(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read the essay from a file (- for stdin)")
	cmd.Flags().StringVar(&opts.scoresFile, "scores-file", "", "also write plain scores to this file (e.g. predicted_scores.txt)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the feedback record as JSON")
	return cmd
}

func runGrade(cmd *cobra.Command, root *rootOptions, opts *gradeOptions, args []string) error {
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	// Fail on a missing key before the user types an essay.
	if err := validateConfig(root.cfg); err != nil {
		return err
	}
	essay, err := readEssay(cmd, opts.file, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(essay) == "" {
		fmt.Fprintln(errOut, "No text was entered. Nothing to grade.")
		return nil
	}

	a, err := newApp(ctx, root.cfg, history.SourceCLI)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(errOut, "Grading your essay...")
	res, err := a.coach.Assess(ctx, essay)
	switch {
	case errors.Is(err, coach.ErrNoInput):
		fmt.Fprintln(errOut, "The essay has no gradable text. Nothing to grade.")
		return nil
	case err != nil:
		return err
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "    ")
		if err := enc.Encode(res.Record); err != nil {
			return err
		}
	} else if err := printAssessment(out, res, a); err != nil {
		return err
	}

	if res.Location != "" {
		fmt.Fprintf(errOut, "Saved feedback to %s\n", res.Location)
	}
	if res.SaveErr != nil {
		fmt.Fprintf(errOut, "Warning: could not save feedback: %v\n", res.SaveErr)
	}
	if opts.scoresFile != "" {
		if err := writeScoresFile(opts.scoresFile, res); err != nil {
			fmt.Fprintf(errOut, "Warning: could not write %s: %v\n", opts.scoresFile, err)
		} else {
			fmt.Fprintf(errOut, "Scores saved to %s\n", opts.scoresFile)
		}
	}

	if res.Status == coach.StatusPartial {
		return &exitError{code: 2, err: fmt.Errorf("feedback unavailable: %s", res.FeedbackError)}
	}
	return nil
}

func printAssessment(w io.Writer, res *coach.Assessment, a *app) error {
	fmt.Fprintf(w, "\n%s\nHere is your feedback!\n%s\n\n### Your Quantitative Scores:\n\n", rule, rule)
	if err := report.Scores(w, res.Record.Scores, a.scale); err != nil {
		return err
	}
	if lvl := res.Record.EstimatedLevel; lvl != nil {
		fmt.Fprintf(w, "\nEstimated overall level: %.1f\n", *lvl)
	}
	if res.Record.FeedbackAvailable {
		fmt.Fprintf(w, "\n### Personalised Feedback:\n\n%s\n", res.Record.Feedback)
	} else {
		fmt.Fprintln(w, "\nWritten feedback could not be generated; only scores are shown.")
	}
	fmt.Fprintf(w, "\n%s\n", rule)
	return nil
}

func readEssay(cmd *cobra.Command, file string, args []string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading essay: %w", err)
		}
		return string(data), nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s\nPlease enter your essay below.\nWhen you are finished, press Enter on an empty line.\n%s\n", rule, rule)
	return readUntilBlank(cmd.InOrStdin())
}

// readUntilBlank reads lines up to the first empty one or EOF.
func readUntilBlank(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), sc.Err()
}

func writeScoresFile(path string, res *coach.Assessment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.PlainScores(f, res.Record.Scores); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
