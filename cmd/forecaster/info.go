package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"oil-forecaster/core/models"
	"oil-forecaster/core/modelstore"

	"github.com/spf13/cobra"
)

// archiveHistory is implemented by archives that keep every published version
type archiveHistory interface {
	History(ctx context.Context, limit int) ([]models.ModelArtifact, error)
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the archived model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			comps, err := buildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			out := cmd.OutOrStdout()
			store := modelstore.NewStore()
			restored, err := comps.restoreModel(cmd.Context(), store)
			if err != nil {
				return err
			}
			if !restored {
				fmt.Fprintf(out, "No model archived at %s\n", comps.archive.Location())
				return nil
			}

			model, err := store.Current()
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderModelSummary(model, comps.archive.Location()))

			layers := model.Network.Architecture()
			rows := make([][]string, 0, len(layers))
			for i, layer := range layers {
				rows = append(rows, []string{strconv.Itoa(i + 1), layer.Type, strconv.Itoa(layer.Units), layer.Activation})
			}
			fmt.Fprint(out, renderTable([]string{"#", "Layer", "Units", "Activation"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
			fmt.Fprintf(out, "Inputs: %s\nTarget: %s\n", strings.Join(model.FeatureNames, ", "), model.TargetName)

			if model.HasImportance() {
				fmt.Fprint(out, renderImportance(model.FeatureImportance))
			}

			if history > 0 {
				archive, ok := comps.archive.(archiveHistory)
				if !ok {
					fmt.Fprintf(out, "%s keeps only the latest model\n", comps.archive.Location())
					return nil
				}
				artifacts, err := archive.History(cmd.Context(), history)
				if err != nil {
					return err
				}
				fmt.Fprint(out, renderHistory(artifacts))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "also list this many archived versions (postgres archive only)")
	return cmd
}

func renderHistory(artifacts []models.ModelArtifact) string {
	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		rows = append(rows, []string{
			strconv.FormatInt(a.Version, 10),
			a.JobID,
			a.CreatedAt.Format(time.RFC3339),
		})
	}
	return renderTable([]string{"Version", "Job", "Archived"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft})
}
