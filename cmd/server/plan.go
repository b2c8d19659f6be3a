package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/config"
	"github.com/t77yq/a2a-travel/internal/workflow"
)

var planReq workflow.PlanRequest

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan one trip and print the result as JSON",
	Long: `Run a single travel plan: a destination safety check followed by flight
and hotel searches. Unsafe destinations return safe alternatives instead.`,
	Example: `  a2a-travel plan --origin London --destination Paris --depart 2026-11-02 --guests 2`,
	RunE:    runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planReq.Origin, "origin", "", "Departure city")
	planCmd.Flags().StringVar(&planReq.Destination, "destination", "", "Destination city or country")
	planCmd.Flags().StringVar(&planReq.DepartureDate, "depart", "", "Departure date (YYYY-MM-DD)")
	planCmd.Flags().StringVar(&planReq.ReturnDate, "return", "", "Return date (YYYY-MM-DD)")
	planCmd.Flags().IntVar(&planReq.Guests, "guests", 1, "Number of guests")
	planCmd.Flags().Float64Var(&planReq.MaxPrice, "max-price", 0, "Maximum hotel price per night")
	planCmd.Flags().BoolVar(&planReq.SkipSafetyCheck, "skip-safety-check", false, "Skip the destination safety stage")
	_ = planCmd.MarkFlagRequired("origin")
	_ = planCmd.MarkFlagRequired("destination")
	_ = planCmd.MarkFlagRequired("depart")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := planReq.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}()

	plan, err := a.planner.Plan(ctx, planReq)
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), plan)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
