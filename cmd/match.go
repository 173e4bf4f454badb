package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/matching"
)

const (
	PromptYes        = "Yes"
	PromptNo         = "No, only save recommendations"
	PromptShowReason = "Show reasons"
	PromptAbort      = "Abort"
)

var errAbort = errors.New("aborted by operator")

var outreachPrompt = promptui.Select{
	Label: "Invite shortlisted partners?",
	Items: []string{PromptYes, PromptNo, PromptShowReason, PromptAbort},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank partners for a service request and invite the shortlist",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("request", "r", "", "id of the service request to match")
	matchCmd.Flags().Bool("no-outreach", false, "only persist recommendations, do not contact partners")
	matchCmd.Flags().IntP("max-partners", "n", 0, "shortlist size (default from matching.max-partners)")
	matchCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before outreach")
	matchCmd.MarkFlagRequired("request")
}

func match(cmd *cobra.Command) {
	ctx := context.Background()
	config, logger := bootstrap(true)
	defer logger.Sync()

	e, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}
	defer e.Close()

	requestID, _ := cmd.Flags().GetString("request")
	maxPartners, _ := cmd.Flags().GetInt("max-partners")
	noOutreach, _ := cmd.Flags().GetBool("no-outreach")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	in := matching.Input{RequestID: requestID, MaxPartners: maxPartners}
	outreach := !noOutreach

	if outreach && !autoApprove {
		preview, err := e.matcher.Preview(ctx, in)
		if err != nil {
			logger.Fatal("ranking partners", zap.Error(err))
		}
		if len(preview.Matches) == 0 {
			logger.Info("no partners to invite", zap.Int("candidates_evaluated", preview.CandidatesEvaluated))
		} else {
			outreach, err = confirmOutreach(logger, preview)
			if errors.Is(err, errAbort) {
				logger.Info("exiting", zap.String("reason", "got abort from prompt"))
				return
			}
			if err != nil {
				logger.Fatal("exiting", zap.Error(err))
			}
		}
	}

	in.AutoOutreach = &outreach
	out, err := e.matcher.Match(ctx, in)
	if err != nil {
		logger.Fatal("matching failed", zap.String("request_id", requestID), zap.Error(err))
	}

	logger.Info("matching finished",
		zap.Int("matches", len(out.Matches)),
		zap.Int("candidates_evaluated", out.CandidatesEvaluated),
		zap.Bool("auto_outreach_sent", out.AutoOutreachSent),
	)
	logFilters(logger, out.Filters)

	// do not bother error since the output is plain data
	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
}

func logFilters(logger *zap.Logger, statuses []matching.Status) {
	for _, st := range statuses {
		fields := []zap.Field{zap.String("filter", st.Name), zap.Bool("enabled", st.Enabled)}
		if st.Reason != "" {
			fields = append(fields, zap.String("reason", st.Reason))
		}
		if len(st.Details) > 0 {
			fields = append(fields, zap.Any("details", st.Details))
		}
		logger.Debug("filter status", fields...)
	}
}

func confirmOutreach(logger *zap.Logger, preview *matching.Output) (bool, error) {
	for _, m := range preview.Matches {
		logger.Info("shortlisted partner",
			zap.String("partner_id", m.PartnerID),
			zap.String("company_name", m.CompanyName),
			zap.Int("score", m.Score),
			zap.Float64("ai_confidence", m.Confidence),
		)
	}

	for {
		_, action, err := outreachPrompt.Run()
		if err != nil {
			return false, err
		}

		switch action {
		case PromptYes:
			return true, nil
		case PromptNo:
			return false, nil
		case PromptAbort:
			return false, errAbort
		case PromptShowReason:
			for _, m := range preview.Matches {
				logger.Info(m.CompanyName, zap.String("partner_id", m.PartnerID), zap.Strings("reasons", m.Reasons))
			}
		default:
			return false, fmt.Errorf("invalid action: %s", action)
		}
	}
}
