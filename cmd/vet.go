package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/domain"
)

var vetCmd = &cobra.Command{
	Use:   "vet",
	Short: "Vet a stored partner application and persist the result",
	Run: func(cmd *cobra.Command, _ []string) {
		vet(cmd)
	},
}

func init() {
	rootCmd.AddCommand(vetCmd)

	vetCmd.Flags().StringP("application", "a", "", "id of the application to vet")
	vetCmd.MarkFlagRequired("application")
}

func vet(cmd *cobra.Command) {
	ctx := context.Background()
	config, logger := bootstrap(true)
	defer logger.Sync()

	e, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}
	defer e.Close()

	id, _ := cmd.Flags().GetString("application")

	result, err := e.vetter.VetByID(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPersist) && result != nil:
		logger.Warn("vetting result was not persisted", zap.Error(err))
	default:
		logger.Fatal("vetting failed", zap.String("application_id", id), zap.Error(err))
	}

	logger.Info("application vetted",
		zap.String("application_id", id),
		zap.Int("overall_score", result.OverallScore),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.String("recommendation", string(result.Recommendation)),
	)

	// do not bother error since the result is plain data
	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(pretty))
}
