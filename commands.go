package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/robinavatar/internal/avatar3d"
)

var asYAML bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <model>",
	Short: "Show how an avatar asset binds: face shapes, blink, hair, ears, head, eyes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rig, err := avatar3d.LoadRig(args[0])
		if err != nil {
			return err
		}
		report := avatar3d.Bind(rig, cfg.AvatarOptions().Binding).Report()
		if asYAML {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(report)
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <text>...",
	Short: "Print the expression and mouth shapes a reply would be spoken with",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		text := strings.Join(args, " ")
		expr := avatar3d.ClassifyEmotion(text)
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "expression: %s\n", expressionColor(expr).Sprint(expr))

		var mouth strings.Builder
		for _, r := range text {
			p := avatar3d.PhonemeOf(r)
			if p == avatar3d.PhonemeNone {
				mouth.WriteRune('.')
				continue
			}
			mouth.WriteString(p.String())
		}
		fmt.Fprintf(out, "mouth:      %s\n", mouth.String())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use, writing defaults if there is none",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, _, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), loader.ConfigFile())
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ configuration is valid")
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&asYAML, "yaml", false, "print the report as YAML")
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)
}

func expressionColor(e avatar3d.Expression) *color.Color {
	switch e {
	case avatar3d.ExpressionHappy:
		return color.New(color.FgGreen, color.Bold)
	case avatar3d.ExpressionSad:
		return color.New(color.FgBlue, color.Bold)
	case avatar3d.ExpressionSurprised:
		return color.New(color.FgYellow, color.Bold)
	case avatar3d.ExpressionAngry:
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.Bold)
}

func printReport(w io.Writer, r avatar3d.BindingReport) {
	ok := color.New(color.FgGreen).SprintFunc()
	missing := color.New(color.FgRed).SprintFunc()
	mark := func(present bool) string {
		if present {
			return ok("✓")
		}
		return missing("✗")
	}
	bold := color.New(color.Bold)

	bold.Fprintf(w, "Rig: %s\n", r.Rig)
	fmt.Fprintf(w, "  face parts  %s %s\n", mark(len(r.FaceParts) > 0), strings.Join(r.FaceParts, ", "))

	shapes := make([]string, 0, len(r.Shapes))
	for name := range r.Shapes {
		shapes = append(shapes, name)
	}
	sort.Strings(shapes)
	for _, name := range shapes {
		fmt.Fprintf(w, "  %-11s %s\n", name, mark(r.Shapes[name]))
	}

	fmt.Fprintf(w, "  blink       %s %s\n", mark(r.Blink != ""), r.Blink)
	fmt.Fprintf(w, "  hair        %s %d joints\n", mark(r.HairJoints > 0), r.HairJoints)
	fmt.Fprintf(w, "  ears        %s %d joints\n", mark(r.EarJoints > 0), r.EarJoints)
	fmt.Fprintf(w, "  head        %s\n", mark(r.Head))
	fmt.Fprintf(w, "  eyes        %s %d\n", mark(r.Eyes > 0), r.Eyes)

	if len(r.Disabled) > 0 {
		color.New(color.FgYellow).Fprintf(w, "Disabled: %s\n", strings.Join(r.Disabled, ", "))
	}
}
