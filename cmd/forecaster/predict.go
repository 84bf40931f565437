package main

import (
	"fmt"
	"strconv"
	"strings"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/predictor"

	"github.com/spf13/cobra"
)

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var features []string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict daily oil production with the archived model",
		Example: "  forecaster predict --feature P_downhole=220 --feature Q_liquid=950 " +
			"--feature H_pump=1800 --feature WC_percent=35 --feature GFR=120 --feature choke_size=40",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			inputs, err := parseFeatures(features)
			if err != nil {
				return err
			}

			comps, err := buildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			store := modelstore.NewStore()
			restored, err := comps.restoreModel(cmd.Context(), store)
			if err != nil {
				return err
			}
			if !restored {
				return apperrors.New("predict", apperrors.ErrModelUnavailable, "no model archived at %s", comps.archive.Location())
			}

			result, err := predictor.NewPredictor(store).Predict(inputs)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Prediction", formatFloat(result.Value) + " " + cfg.PredictionUnit},
				{"Model version", strconv.FormatInt(result.ModelVersion, 10)},
			}
			if len(result.Missing) > 0 {
				rows = append(rows, []string{"Defaulted to 0", strings.Join(result.Missing, ", ")})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&features, "feature", nil, "Feature value as name=value (repeatable)")
	return cmd
}

// parseFeatures turns name=value pairs into predictor inputs
func parseFeatures(pairs []string) (map[string]float64, error) {
	inputs := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid feature %q, want name=value", pair)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for feature %s: %w", name, err)
		}
		inputs[name] = value
	}
	return inputs, nil
}
