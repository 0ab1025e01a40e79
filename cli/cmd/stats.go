package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCommand() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "stats [project-slug]",
		Short: "Show aggregated translation statistics",
		Long: `Stats prints the denormalized counters per project and locale. With
--repair the counters are first recomputed from the per-resource state,
which fixes drift left behind by interrupted runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, verbosity, nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			projects, err := rt.store.Projects().Syncable(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				project, err := rt.store.Projects().BySlug(ctx, args[0])
				if err != nil {
					return err
				}
				projects = projects[:0]
				projects = append(projects, project)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROJECT\tLOCALE\tTOTAL\tAPPROVED\tFUZZY\tTRANSLATED")
			for _, project := range projects {
				if repair {
					if err := rt.store.AggregateProjectStats(ctx, project.ID); err != nil {
						return err
					}
				}
				locales, err := rt.store.ProjectLocales().LocalesForProject(ctx, project.ID)
				if err != nil {
					return err
				}
				for _, locale := range locales {
					if repair {
						if err := rt.store.AggregateProjectLocaleStats(ctx, project.ID, locale.ID); err != nil {
							return err
						}
						if err := rt.store.AggregateLocaleStats(ctx, locale.ID); err != nil {
							return err
						}
					}
					pl, err := rt.store.ProjectLocales().Get(ctx, project.ID, locale.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
						project.Slug, locale.Code,
						pl.TotalStrings, pl.ApprovedStrings, pl.FuzzyStrings, pl.TranslatedStrings)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Recompute the counters before printing")
	return cmd
}
