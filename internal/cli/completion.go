package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// completionShell describes where one shell's completion script goes.
type completionShell struct {
	name       string
	generate   func(root *cobra.Command, w io.Writer) error
	systemPath string
	userPath   []string // relative to the home directory
	userHint   string
}

var completionShells = []completionShell{
	{
		name: "bash",
		generate: func(root *cobra.Command, w io.Writer) error {
			return root.GenBashCompletionV2(w, true)
		},
		systemPath: "/etc/bash_completion.d/daotrace",
		userPath:   []string{".bash_completion.d", "daotrace"},
		userHint: `Add to your ~/.bashrc if not already present:
  for f in ~/.bash_completion.d/*; do source "$f"; done`,
	},
	{
		name: "zsh",
		generate: func(root *cobra.Command, w io.Writer) error {
			return root.GenZshCompletion(w)
		},
		systemPath: "/usr/local/share/zsh/site-functions/_daotrace",
		userPath:   []string{".zsh", "completions", "_daotrace"},
		userHint: `Add to your ~/.zshrc if not already present:
  fpath=(~/.zsh/completions $fpath)
  autoload -U compinit && compinit`,
	},
}

func findShell(name string) (completionShell, bool) {
	for _, s := range completionShells {
		if s.name == name {
			return s, true
		}
	}
	return completionShell{}, false
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Generate or install shell completion scripts",
		Long: `Generate or install shell completion scripts for daotrace.

Subcommands:
  bash      Print bash completion script to stdout
  zsh       Print zsh completion script to stdout
  install   Auto-detect shell and install completion script`,
	}

	for _, s := range completionShells {
		cmd.AddCommand(newCompletionShellCmd(s))
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Auto-detect shell and install completion script",
		Long: `Auto-detect your shell and install the completion script, system-wide
when running as root and under your home directory otherwise.`,
		Args: cobra.NoArgs,
		RunE: runCompletionInstall,
	})
	return cmd
}

func newCompletionShellCmd(s completionShell) *cobra.Command {
	return &cobra.Command{
		Use:   s.name,
		Short: "Generate " + s.name + " completion script",
		Long: fmt.Sprintf(`Generate %[1]s completion script for daotrace.

To load completions in your current shell session:
  source <(daotrace completion %[1]s)`, s.name),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.generate(cmd.Root(), cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("generate %s completion: %w", s.name, err)
			}
			return nil
		},
	}
}

func runCompletionInstall(cmd *cobra.Command, args []string) error {
	name := detectShell()
	s, ok := findShell(name)
	if !ok {
		return fmt.Errorf("unsupported shell %q (only bash and zsh are supported)", name)
	}

	var script bytes.Buffer
	if err := s.generate(cmd.Root(), &script); err != nil {
		return fmt.Errorf("generate %s completion: %w", s.name, err)
	}

	path, hint := s.systemPath, "Completion will be available in new shells."
	if !isRunningAsRoot() {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home directory: %w", err)
		}
		path = filepath.Join(append([]string{home}, s.userPath...)...)
		hint = s.userHint
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, script.Bytes(), 0644); err != nil {
		return fmt.Errorf("write completion file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s completion to: %s\n\n%s\n", s.name, path, hint)
	return nil
}

func detectShell() string {
	base := filepath.Base(os.Getenv("SHELL"))
	switch {
	case strings.Contains(base, "bash"):
		return "bash"
	case strings.Contains(base, "zsh"):
		return "zsh"
	default:
		return base
	}
}

func isRunningAsRoot() bool {
	if os.Geteuid() == 0 || os.Getenv("SUDO_USER") != "" {
		return true
	}
	u, err := user.Current()
	return err == nil && u.Uid == "0"
}
