package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/crowdlate/crowdlate/tmx"
)

func newTMXCommand() *cobra.Command {
	var (
		out        string
		sourceLang string
	)

	cmd := &cobra.Command{
		Use:   "tmx <locale-code>",
		Short: "Export a locale's translation memory as a TMX 1.4 document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, verbosity, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			locale, err := rt.store.Locales().ByCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows, err := rt.store.Translations().ExportMemory(cmd.Context(), locale.ID)
			if err != nil {
				return err
			}
			units := make([]tmx.Unit, 0, len(rows))
			for _, row := range rows {
				units = append(units, tmx.Unit{
					ProjectSlug:  row.ProjectSlug,
					ResourcePath: row.ResourcePath,
					EntityKey:    row.EntityKey,
					Source:       row.Source,
					Target:       row.Target,
				})
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return tmx.Write(w, sourceLang, locale.Code, units)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Write to a file instead of stdout")
	cmd.Flags().StringVar(&sourceLang, "source-lang", "en-US", "Source language code for the exported segments")
	return cmd
}
