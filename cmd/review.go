package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spigell/resume-screener/internal/audit"
	"github.com/spigell/resume-screener/internal/screening"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	PromptBack        = "back"
	PromptExit        = "exit"
	PromptChangeState = "Change status"
	PromptEditNotes   = "Edit notes"
	PromptShowDetails = "Show details"
	PromptShowHistory = "Show history"
)

var errExit = errors.New("exit requested")

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review evaluations interactively: change status and notes",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	addUserFlag(reviewCmd)
	reviewCmd.Flags().String("job", "", "only show evaluations for this job id")
	reviewCmd.Flags().Int("limit", 50, "how many evaluations to load (at most 100)")
}

func review(cmd *cobra.Command) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	jobID, _ := cmd.Flags().GetString("job")
	limit, _ := cmd.Flags().GetInt("limit")

	for {
		evals, err := rt.service.ListEvaluations(ctx, p, screening.ListFilter{JobID: jobID, Limit: limit})
		if err != nil {
			rt.logger.Fatal("loading evaluations", zap.Error(err))
		}
		if len(evals) == 0 {
			rt.logger.Info("exiting", zap.String("reason", "no evaluations found"))
			return
		}

		selected, err := chooseEvaluation(evals)
		if err != nil {
			if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) {
				return
			}
			rt.logger.Fatal("exiting", zap.Error(err))
		}

		if err := reviewEvaluation(ctx, rt, p, selected); err != nil {
			if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) {
				return
			}
			rt.logger.Error("reviewing evaluation", zap.String("evaluation_id", selected.ID), zap.Error(err))
		}
	}
}

func chooseEvaluation(evals []*screening.Evaluation) (*screening.Evaluation, error) {
	items := make([]string, 0, len(evals)+1)
	for _, e := range evals {
		items = append(items, fmt.Sprintf("%s %3d %-11s %-8s resume %s", e.ID, e.Score, e.Status, e.Seniority, e.ResumeID))
	}

	evalPrompt := promptui.Select{
		Label: "Choose an evaluation and press ENTER",
		Items: append(items, PromptExit),
		Size:  15,
	}

	idx, selected, err := evalPrompt.Run()
	if err != nil {
		return nil, err
	}
	if selected == PromptExit {
		return nil, errExit
	}
	return evals[idx], nil
}

func reviewEvaluation(ctx context.Context, rt *runtime, p screening.Principal, eval *screening.Evaluation) error {
	for {
		actionPrompt := promptui.Select{
			Label: fmt.Sprintf("%s (score %d, %s)", eval.ID, eval.Score, eval.Status),
			Items: []string{PromptShowDetails, PromptChangeState, PromptEditNotes, PromptShowHistory, PromptBack},
		}

		_, action, err := actionPrompt.Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptBack:
			return nil
		case PromptShowDetails:
			printJSON(rt.logger, eval)
		case PromptShowHistory:
			trail, err := rt.service.ListAuditEvents(ctx, p, audit.Filter{EntityType: "evaluation", EntityID: eval.ID})
			if err != nil {
				return err
			}
			for _, event := range trail {
				rt.logger.Info(event.Message,
					zap.String("action", event.Action),
					zap.String("actor", event.Actor.UserID),
					zap.Time("at", event.CreatedAt),
				)
			}
		case PromptChangeState:
			status, err := chooseStatus(eval.Status)
			if err != nil {
				return err
			}
			if eval, err = rt.service.PatchEvaluation(ctx, p, eval.ID, screening.Patch{Status: &status}); err != nil {
				return err
			}
			rt.logger.Info("status saved", zap.String("evaluation_id", eval.ID), zap.String("status", string(eval.Status)))
		case PromptEditNotes:
			notesPrompt := promptui.Prompt{
				Label:     "Notes",
				Default:   eval.Notes,
				AllowEdit: true,
				Validate: func(s string) error {
					if utf8.RuneCountInString(s) > 5000 {
						return errors.New("notes must be at most 5000 characters")
					}
					return nil
				},
			}
			notes, err := notesPrompt.Run()
			if err != nil {
				return err
			}
			notes = strings.TrimSpace(notes)
			if eval, err = rt.service.PatchEvaluation(ctx, p, eval.ID, screening.Patch{Notes: &notes}); err != nil {
				return err
			}
			rt.logger.Info("notes saved", zap.String("evaluation_id", eval.ID))
		default:
			return fmt.Errorf("invalid action: %s", action)
		}
	}
}

func chooseStatus(current screening.Status) (screening.Status, error) {
	items := make([]string, 0, len(screening.Statuses))
	cursor := 0
	for i, s := range screening.Statuses {
		items = append(items, string(s))
		if s == current {
			cursor = i
		}
	}

	statusPrompt := promptui.Select{
		Label:     "New status",
		Items:     items,
		CursorPos: cursor,
	}
	_, selected, err := statusPrompt.Run()
	if err != nil {
		return "", err
	}
	return screening.ParseStatus(selected)
}
