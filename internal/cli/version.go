package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/andywolf/competency/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information including commit hash and build date.

Example:
  competency version
  competency version --verbose
  competency version -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return printVersion(cmd.OutOrStdout(), output, viper.GetBool("verbose"))
	},
}

func init() {
	versionCmd.Flags().StringP("output", "o", "text", "output format (text, yaml, json)")
	rootCmd.AddCommand(versionCmd)
}

func printVersion(out io.Writer, output string, verbose bool) error {
	switch output {
	case "text":
		if verbose {
			fmt.Fprintln(out, version.Full())
		} else {
			fmt.Fprintln(out, version.Info())
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(out)
		if err := enc.Encode(version.Get()); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(version.Get())
	}
	return fmt.Errorf("invalid output format: %s (must be text, yaml, or json)", output)
}
