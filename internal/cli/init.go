package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/gpustat/internal/config"
	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/ui"
	"github.com/rileyhilliard/gpustat/pkg/sshutil"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	initForce  bool
	initGlobal bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a gpustat config file",
	Long: `Create a config file interactively. Hosts from ~/.ssh/config are offered
as choices, and any other hostnames can be typed in.

The file holds the SSH password and is written with 0600 permissions.

Examples:
  gpustat init
  gpustat init --global
  gpustat init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(".", config.ConfigFileName)
		if initGlobal {
			path = config.GlobalConfigPath()
		}
		return initCommand(path, initForce)
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing config")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write ~/.config/gpustat/config.yaml instead of ./gpustat.yaml")
	rootCmd.AddCommand(initCmd)
}

// initAnswers holds what the user entered in the init form.
type initAnswers struct {
	Aliases    []string
	ExtraHosts string
	Username   string
	Password   string
	Addr       string
}

func initCommand(path string, force bool) error {
	if path == "" {
		return errors.New(errors.ErrConfig,
			"Can't determine the config path",
			"Pass --config or run from a directory you can write to")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New(errors.ErrConfig,
			"gpustat init needs an interactive terminal",
			"Set HOSTNAMES, GPUSER_NAME and GPUSER_PASSWORD in the environment instead")
	}

	if _, err := os.Stat(path); err == nil && !force {
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", path)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	answers := initAnswers{Addr: config.DefaultConfig().Server.Addr}
	if err := initForm(&answers).Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or write the config file by hand")
	}

	cfg, err := buildInitConfig(answers)
	if err != nil {
		return err
	}

	if err := config.Write(path, cfg); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write "+path,
			"Check you have write access to the directory")
	}

	fmt.Printf("%s Wrote %s with %d host(s)\n", ui.SymbolSuccess, path, len(cfg.Hosts))
	fmt.Println("  Try it with: gpustat poll")
	return nil
}

// initForm builds the interactive form. Hosts from ~/.ssh/config are
// offered as a multi-select when there are any.
func initForm(answers *initAnswers) *huh.Form {
	var groups []*huh.Group

	if aliases, err := sshutil.ConfigAliases(); err == nil && len(aliases) > 0 {
		options := make([]huh.Option[string], len(aliases))
		for i, a := range aliases {
			options[i] = huh.NewOption(a.Label(), a.Alias)
		}
		groups = append(groups, huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Hosts from ~/.ssh/config").
				Description("Space to select, enter to continue").
				Options(options...).
				Value(&answers.Aliases),
		))
	}

	groups = append(groups,
		huh.NewGroup(
			huh.NewInput().
				Title("Other hosts (optional)").
				Description("Comma-separated hostnames or user@host:port").
				Placeholder("gpu-01,gpu-02").
				Value(&answers.ExtraHosts).
				Validate(validateHostList),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("SSH username").
				Value(&answers.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("SSH password").
				EchoMode(huh.EchoModePassword).
				Value(&answers.Password).
				Validate(required("password")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP listen address").
				Description("Used by 'gpustat serve'").
				Value(&answers.Addr).
				Validate(required("listen address")),
		),
	)

	return huh.NewForm(groups...)
}

// buildInitConfig turns form answers into a validated config.
func buildInitConfig(answers initAnswers) (*config.Config, error) {
	cfg := config.DefaultConfig()

	seen := make(map[string]bool)
	for _, h := range append(append([]string(nil), answers.Aliases...), splitHosts(answers.ExtraHosts)...) {
		if !seen[h] {
			seen[h] = true
			cfg.Hosts = append(cfg.Hosts, h)
		}
	}

	cfg.Credentials.Username = strings.TrimSpace(answers.Username)
	cfg.Credentials.Password = answers.Password
	if addr := strings.TrimSpace(answers.Addr); addr != "" {
		cfg.Server.Addr = addr
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateHostList(s string) error {
	for _, h := range splitHosts(s) {
		if strings.ContainsAny(h, " \t") {
			return fmt.Errorf("%q contains whitespace; separate hosts with commas", h)
		}
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
