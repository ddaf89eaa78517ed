package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-coach/pkg/coach"
)

var optionsJSON bool

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the selectable roles, difficulties and interview types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := coach.DefaultCatalogue()
		if optionsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cat)
		}
		printCatalogue(cmd.OutOrStdout(), cat)
		return nil
	},
}

func init() {
	optionsCmd.Flags().BoolVar(&optionsJSON, "json", false, "print as JSON")
}

func printCatalogue(w io.Writer, cat coach.Catalogue) {
	groups := []struct {
		title   string
		choices []coach.Choice
		def     string
	}{
		{"Roles (--role)", cat.Roles, cat.Default.Role},
		{"Difficulties (--difficulty)", cat.Difficulties, cat.Default.Difficulty},
		{"Interview types (--mode)", cat.Modes, cat.Default.Mode},
	}
	for _, g := range groups {
		fmt.Fprintln(w, g.title)
		for _, c := range g.choices {
			marker := " "
			if c.ID == g.def {
				marker = "*"
			}
			fmt.Fprintf(w, " %s %-18s %s\n", marker, c.ID, c.Label)
		}
		fmt.Fprintln(w)
	}
}
