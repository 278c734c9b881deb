package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/postpilot/internal/pipeline"
	"github.com/user/postpilot/internal/types"
)

var (
	createAttachments []string
	createScheduleAt  string
	createInputFile   string
)

func init() {
	createCmd.Flags().StringSliceVar(&createAttachments, "attach", nil, "attachment file path (repeatable)")
	createCmd.Flags().StringVar(&createScheduleAt, "at", "", "schedule time (RFC3339 or \"2006-01-02 15:04\", local time; default now)")
	createCmd.Flags().StringVar(&createInputFile, "file", "", "read notes from a file instead of stdin")
	rootCmd.AddCommand(createCmd)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a post from rough notes",
	Long: `Create walks rough notes through structuring, validation, persona
enrichment, generation, and refinement, then asks for approval before
scheduling the finished post. Lines of the form "url: https://..." pull
the page content into the notes.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	var scheduledAt *time.Time
	if createScheduleAt != "" {
		at, err := parseScheduleTime(createScheduleAt)
		if err != nil {
			return err
		}
		scheduledAt = &at
	}

	lines, err := collectLines()
	if err != nil {
		return err
	}

	for _, path := range createAttachments {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("attachment not found: %s", path)
		}
	}

	transformer, err := newTransformer(cfg)
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := pipeline.New(transformer, newPersonaStore(cfg), store,
		pipeline.WithMaxRevisions(cfg.Pipeline.MaxRevisions),
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout.Std()),
		pipeline.WithRetryBackoff(cfg.Pipeline.RetryBackoff.Std()),
	)

	ctx := cmd.Context()
	reader := bufio.NewReader(os.Stdin)

	session, result, err := orch.Start(ctx, pipeline.Input{
		Lines:       lines,
		Attachments: createAttachments,
		ScheduledAt: scheduledAt,
	})
	for {
		if err != nil {
			fmt.Printf("\nStage failed: %v\n", err)
			choice := promptLine(reader, "Retry the failed stage? (y/n): ")
			if !strings.HasPrefix(strings.ToLower(choice), "y") {
				orch.Cancel(session)
				return errors.New("session cancelled")
			}
			result, err = orch.Retry(ctx, session)
			continue
		}

		switch result.Await {
		case pipeline.AwaitAnswers:
			fmt.Println("\nA few details are missing:")
			var answers []types.ClarifyingAnswer
			for _, q := range result.Questions {
				answers = append(answers, types.ClarifyingAnswer{
					Question: q,
					Answer:   promptLine(reader, fmt.Sprintf("  %s\n  > ", q)),
				})
			}
			result, err = orch.Answer(ctx, session, answers)

		case pipeline.AwaitDecision:
			if result.Soft != nil {
				fmt.Printf("\nNote: %v\n", result.Soft)
			}
			fmt.Println("\nHere's your post:")
			fmt.Println(strings.Repeat("-", 40))
			fmt.Println(result.Draft)
			fmt.Println(strings.Repeat("-", 40))
			if result.Revisions > 0 {
				fmt.Printf("(revision %d)\n", result.Revisions)
			}
			fmt.Println("\n1. Approve   2. Revise   3. Regenerate   4. Cancel")

			decision, ok := readDecision(reader)
			if !ok {
				fmt.Println("Invalid choice. Please enter 1-4.")
				continue
			}
			result, err = orch.Decide(ctx, session, decision)

		default:
			if result.Aborted {
				fmt.Println("\nPost creation cancelled.")
				return nil
			}
			record := result.Record
			fmt.Printf("\nPost %d scheduled for %s.\n",
				record.ID, record.ScheduledAt.Local().Format("2006-01-02 15:04 MST"))
			fmt.Println("Run 'postpilot serve' to keep the scheduler running.")
			return nil
		}
	}
}

// collectLines reads the note, either from --file or interactively until
// a line containing only "END" or EOF.
func collectLines() ([]string, error) {
	if createInputFile != "" {
		data, err := os.ReadFile(createInputFile)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		return nonEmptyLines(strings.Split(string(data), "\n")), nil
	}

	fmt.Println("Tell me about what you want to share.")
	fmt.Println("Rough notes, bullet points, or a brief description all work.")
	fmt.Println("Type END on its own line when finished.")
	fmt.Println()

	var lines []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "END" {
			break
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	lines = nonEmptyLines(lines)
	if len(lines) == 0 {
		return nil, errors.New("no input provided")
	}
	return lines, nil
}

func nonEmptyLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func readDecision(reader *bufio.Reader) (pipeline.Decision, bool) {
	choice := promptLine(reader, "\nYour choice (1-4): ")
	switch choice {
	case "1", "approve":
		return pipeline.Decision{Action: pipeline.ActionApprove}, true
	case "2", "revise":
		feedback := promptLine(reader, "What should change?\n> ")
		if feedback == "" {
			fmt.Println("No feedback provided, keeping the current draft.")
			return pipeline.Decision{}, false
		}
		return pipeline.Decision{Action: pipeline.ActionRevise, Feedback: feedback}, true
	case "3", "regenerate":
		return pipeline.Decision{Action: pipeline.ActionRegenerate}, true
	case "4", "cancel":
		return pipeline.Decision{Action: pipeline.ActionCancel}, true
	default:
		return pipeline.Decision{}, false
	}
}

func promptLine(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(line)
}

// parseScheduleTime accepts RFC3339 or a local "2006-01-02 15:04" form.
func parseScheduleTime(value string) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, value); err == nil {
		return at, nil
	}
	if at, err := time.ParseInLocation("2006-01-02 15:04", value, time.Local); err == nil {
		return at, nil
	}
	// Bare offsets like "+2h" are handy for quick tests.
	if strings.HasPrefix(value, "+") {
		if d, err := time.ParseDuration(value[1:]); err == nil {
			return time.Now().Add(d), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid schedule time %q (want RFC3339, \"2006-01-02 15:04\", or +duration)", value)
}
