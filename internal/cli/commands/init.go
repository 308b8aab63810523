package commands

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/hmr/internal/cli/config"
	"github.com/conduit-lang/hmr/internal/cli/ui"
	"github.com/conduit-lang/hmr/internal/manifest"
)

// initAnswers holds the scaffold settings, prompted or defaulted.
type initAnswers struct {
	Manifest string `survey:"manifest"`
	Entry    string `survey:"entry"`
	Source   string `survey:"source"`
	Port     string `survey:"port"`
}

func defaultInitAnswers() initAnswers {
	return initAnswers{
		Manifest: "modules.yaml",
		Entry:    "app/main",
		Source:   "src/main.js",
		Port:     "3000",
	}
}

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		dir   string
		yes   bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create hmr.yaml and a starter module manifest",
		Long: `Scaffold a project: hmr.yaml, a module manifest with an entry module that
accepts updates of its view, and the two source files if they do not exist.

Examples:
  # Answer a few questions
  hmr init

  # Take the defaults
  hmr init --yes
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			answers := defaultInitAnswers()
			if !yes {
				if err := askInit(&answers); err != nil {
					return err
				}
			}
			return runInit(cmd, dir, answers, force)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to initialize")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Use defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing hmr.yaml")

	return cmd
}

func askInit(answers *initAnswers) error {
	questions := []*survey.Question{
		{
			Name:     "manifest",
			Prompt:   &survey.Input{Message: "Manifest file:", Default: answers.Manifest},
			Validate: survey.Required,
		},
		{
			Name:     "entry",
			Prompt:   &survey.Input{Message: "Entry module id:", Default: answers.Entry},
			Validate: survey.Required,
		},
		{
			Name:     "source",
			Prompt:   &survey.Input{Message: "Entry source file:", Default: answers.Source},
			Validate: survey.Required,
		},
		{
			Name:     "port",
			Prompt:   &survey.Input{Message: "Dev server port:", Default: answers.Port},
			Validate: survey.ComposeValidators(survey.Required, validatePort),
		},
	}
	return survey.Ask(questions, answers)
}

func validatePort(val interface{}) error {
	s, _ := val.(string)
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}

func runInit(cmd *cobra.Command, dir string, answers initAnswers, force bool) error {
	if err := validatePort(answers.Port); err != nil {
		return err
	}
	port, _ := strconv.Atoi(answers.Port)

	configPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	view := path.Join(path.Dir(answers.Entry), "view")
	viewSource := filepath.ToSlash(filepath.Join(filepath.Dir(answers.Source), "view"+filepath.Ext(answers.Source)))

	m := &manifest.Manifest{
		Entries: []string{answers.Entry},
		Modules: map[string]manifest.ModuleSpec{
			answers.Entry: {
				Source: answers.Source,
				Deps:   []string{"./view"},
				Hot:    manifest.HotSpec{Accept: []string{"./view"}},
			},
			view: {Source: viewSource},
		},
	}
	manifestData, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	configData, err := yaml.Marshal(map[string]any{
		"manifest": answers.Manifest,
		"server":   map[string]any{"host": "localhost", "port": port},
		"watch":    map[string]any{"debounce": "100ms"},
		"log":      map[string]any{"level": "info", "development": true},
		"metrics":  map[string]any{"enabled": true},
	})
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	files := []struct {
		path      string
		data      []byte
		overwrite bool
	}{
		{configPath, configData, true},
		{filepath.Join(dir, answers.Manifest), manifestData, force},
		{filepath.Join(dir, answers.Source), []byte("// entry module\n"), false},
		{filepath.Join(dir, viewSource), []byte("// accepted by the entry module\n"), false},
	}

	out := cmd.OutOrStdout()
	nc := noColor(cmd)
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil && !f.overwrite {
			fmt.Fprint(out, ui.Info("Keeping existing "+f.path, nc))
			continue
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(f.path, f.data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		ui.WriteSuccess(out, "Created "+f.path, nc)
	}

	hint := color.New(color.FgCyan)
	if nc {
		hint.DisableColor()
	}
	fmt.Fprintln(out)
	hint.Fprintln(out, "Next: hmr watch")
	return nil
}
