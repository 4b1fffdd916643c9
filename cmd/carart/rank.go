package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pinstripe-labs/carart/engine/catalog"
	"github.com/pinstripe-labs/carart/engine/domain"
)

func rankCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "rank <vehicle...>",
		Short:   "Print the style order for a vehicle",
		Example: "  carart rank 1970 Chevrolet Impala SS\n  carart rank \"'87 buick grand national\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := catalog.ParseIdentity(strings.Join(args, " "))
			if !ok {
				return fmt.Errorf("rank: no known make in %q", strings.Join(args, " "))
			}
			category := catalog.Classify(v)
			ranked := catalog.Rank(v)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Category domain.Category `json:"category"`
					Styles   []domain.Style  `json:"styles"`
				}{category, ranked})
			}
			fmt.Fprintf(out, "%s → %s\n", v, category)
			for i, s := range ranked {
				fmt.Fprintf(out, "%2d. %s %s (%s)\n", i+1, s.Emoji, s.Label, s.ID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func checkPrioritiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-priorities",
		Short: "Verify every category ranks the full style catalog exactly once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := catalog.ValidatePriorities(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d categories x %d styles\n", len(domain.Categories), catalog.Size())
			return nil
		},
	}
}
