package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NBISweden/timereport/pkg/report"
)

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the matrix classification rules",
		Long: `Print the decision list used to classify time entries into matrix
buckets, in evaluation order. The first matching rule wins; entries matching
no rule are reported as unclassified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-4s %-26s %s\n", "POS", "RULE", "BUCKET")
			for _, rule := range report.Rules() {
				bucket := string(rule.Bucket)
				if rule.Ignore {
					bucket = "(ignored)"
				}
				fmt.Fprintf(out, "%-4d %-26s %s\n", rule.Position, rule.Name, bucket)
			}
			return nil
		},
	}
}
