package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/imyousuf/daotrace/internal/config"
)

// Style definitions for config view.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	labelStyle = lipgloss.NewStyle().
			Faint(true).
			Width(22)
	valueStyle = lipgloss.NewStyle()
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or initialize configuration",
		Long: `View or initialize daotrace configuration.

By default, displays the effective configuration (file, environment and
defaults merged) in a pretty-printed format.

Subcommands:
  init       Write a configuration file with every default spelled out
  patterns   Print the effective pattern configuration`,
		RunE: runConfigView,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPatternsCmd())
	return cmd
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("daotrace Configuration"))
	fmt.Fprintln(out, headerStyle.Render(strings.Repeat("=", 22)))
	fmt.Fprintln(out)

	printSection(out, "Analyze")
	workers := "one per CPU"
	if cfg.Analyze.Workers > 0 {
		workers = strconv.Itoa(cfg.Analyze.Workers)
	}
	printKV(out, "Workers", workers)
	printKV(out, "Format", cfg.Analyze.Format)
	printKV(out, "Color", cfg.Analyze.Color)
	printKV(out, "Max file size", fmt.Sprintf("%d bytes", cfg.Analyze.MaxFileSize))
	printKV(out, "Skip mappers", boolYesNo(cfg.Analyze.SkipMappers))
	printKV(out, "Watch debounce", fmt.Sprintf("%d ms", cfg.Analyze.DebounceMS))
	if cfg.Analyze.MetricsFile != "" {
		printKV(out, "Metrics file", cfg.Analyze.MetricsFile)
	}
	fmt.Fprintln(out)

	printSection(out, "Exclusions")
	for _, pattern := range cfg.Analyze.Exclude {
		fmt.Fprintf(out, "    %s\n", pattern)
	}
	fmt.Fprintln(out)

	printSection(out, "Patterns")
	opts := cfg.Patterns.Options()
	verbs := make([]string, 0, len(opts.SessionMethods))
	for name, access := range opts.SessionMethods {
		verbs = append(verbs, name+"="+string(access))
	}
	sort.Strings(verbs)
	printKV(out, "Session methods", strings.Join(verbs, ", "))
	printKV(out, "Session receivers", listOrAny(opts.SessionReceivers))
	printKV(out, "Inject annotations", strings.Join(opts.InjectAnnotations, ", "))
	printKV(out, "Binding annotations", strings.Join(opts.BindingAnnotations, ", "))
	printKV(out, "Mapper annotations", strings.Join(opts.MapperAnnotations, ", "))
	printKV(out, "Simple-name fallback", boolYesNo(opts.SimpleNameFallback))
	fmt.Fprintln(out)

	printSection(out, "Layers")
	for _, r := range cfg.Patterns.Filled().Layers {
		markers := append(append(append([]string{}, prefixAll("@", r.Annotations)...), prefixAll("*", r.Suffixes)...), prefixAll("pkg ", r.Packages)...)
		printKV(out, r.Layer, strings.Join(markers, ", "))
	}
	fmt.Fprintln(out)

	printSection(out, "Storage")
	printKV(out, "Store dir", cfg.Store.Dir)
	printKV(out, "Neo4j URI", cfg.Neo4j.URI)
	printKV(out, "Neo4j user", cfg.Neo4j.Username)
	printKV(out, "Neo4j database", cfg.Neo4j.Database)
	fmt.Fprintln(out)

	return nil
}

func printSection(out io.Writer, title string) {
	fmt.Fprintf(out, "  %s\n", headerStyle.Render(title))
}

func printKV(out io.Writer, label, value string) {
	fmt.Fprintf(out, "    %s%s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func boolYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func listOrAny(s []string) string {
	if len(s) == 0 {
		return "(any)"
	}
	return strings.Join(s, ", ")
}

func prefixAll(prefix string, s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = prefix + v
	}
	return out
}

func newConfigPatternsCmd() *cobra.Command {
	var (
		file   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Print the effective pattern configuration",
		Long: `Print the pattern configuration analyze would use, with defaults filled
in. With --file, the given pattern config is validated and printed instead;
an invalid file fails with exit status 2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			patterns := cfg.Patterns
			if file != "" {
				pc, err := config.LoadPatterns(file)
				if err != nil {
					return err
				}
				patterns = *pc
			}
			filled := patterns.Filled()

			data, err := config.Marshal(&config.Config{Patterns: filled}, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "pattern config file to validate and print")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or toml")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		interactive bool
		format      string
		output      string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default spelled out",
		Long: `Write a configuration file holding the default settings and patterns,
ready to edit. The file is .daotrace.yaml (or .daotrace.toml with
--format toml) in the current directory unless --output is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = config.DefaultConfigFile + "." + format
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", output)
			}

			cfg := config.Default()
			if interactive {
				ok, err := runInteractiveInit(cmd, cfg, &output)
				if err != nil || !ok {
					return err
				}
			}

			if err := config.WriteConfig(cfg, output); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", output)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "choose the main settings with a form")
	cmd.Flags().StringVar(&format, "format", "yaml", "file format: yaml or toml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// runInteractiveInit fills cfg from a form. It reports false when the user
// cancels.
func runInteractiveInit(cmd *cobra.Command, cfg *config.Config, output *string) (bool, error) {
	out := cmd.OutOrStdout()

	var (
		outFormat = cfg.Analyze.Format
		colorMode = cfg.Analyze.Color
		storeDir  = cfg.Store.Dir
		neo4jURI  = cfg.Neo4j.URI
		fallback  = true
		confirm   bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Output format").
				Options(
					huh.NewOption("JSON artifact", "json"),
					huh.NewOption("CSV trace rows", "csv"),
					huh.NewOption("Text report", "text"),
				).
				Value(&outFormat),
			huh.NewSelect[string]().
				Title("Color").
				Options(
					huh.NewOption("Auto (terminal only)", "auto"),
					huh.NewOption("Always", "always"),
					huh.NewOption("Never", "never"),
				).
				Value(&colorMode),
		).Title("Analyze"),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Resolve field types by unique simple name?").
				Description("Used when an injected field's type has no import").
				Value(&fallback).
				Affirmative("Yes").
				Negative("No"),
		).Title("Patterns"),

		huh.NewGroup(
			huh.NewInput().
				Title("Graph store directory").
				Value(&storeDir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("store directory cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Neo4j URI").
				Value(&neo4jURI).
				Placeholder("bolt://localhost:7687"),
		).Title("Storage"),

		huh.NewGroup(
			huh.NewNote().
				Title("Summary").
				DescriptionFunc(func() string {
					return fmt.Sprintf(
						"File:        %s\n"+
							"Format:      %s\n"+
							"Color:       %s\n"+
							"Fallback:    %v\n"+
							"Store:       %s\n"+
							"Neo4j:       %s",
						*output, outFormat, colorMode, fallback, storeDir, neo4jURI,
					)
				}, &storeDir),
			huh.NewConfirm().
				Title("Write configuration?").
				Value(&confirm).
				Affirmative("Write").
				Negative("Cancel"),
		).Title("Confirm"),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(out, "Cancelled.")
			return false, nil
		}
		return false, fmt.Errorf("interactive init: %w", err)
	}
	if !confirm {
		fmt.Fprintln(out, "Cancelled.")
		return false, nil
	}

	cfg.Analyze.Format = outFormat
	cfg.Analyze.Color = colorMode
	cfg.Patterns.SimpleNameFallback = &fallback
	cfg.Store.Dir = strings.TrimSpace(storeDir)
	cfg.Neo4j.URI = neo4jURI
	return true, nil
}
