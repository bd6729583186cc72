package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/register/internal/config"
	"github.com/zjrosen/register/internal/flags"
)

func newConfigCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and edit the config file",
	}
	cmd.AddCommand(newConfigInitCmd(s), newConfigShowCmd(s), newConfigFlagCmd(s))
	return cmd
}

func newConfigInitCmd(s *session) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Long: `Write the default config to --config, or ~/.config/register/config.yaml.
An existing file is kept unless --force is given.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := s.configTarget()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config as YAML with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Marshal(config.Redacted(s.cfg))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigFlagCmd(s *session) *cobra.Command {
	var known strings.Builder
	for _, d := range flags.Definitions() {
		fmt.Fprintf(&known, "\n  %-16s %s (default %t)", d.Name, d.Description, d.Default)
	}
	return &cobra.Command{
		Use:   "flag <name> <on|off>",
		Short: "Turn a feature flag on or off in the config file",
		Long:  "Set a feature flag in the config file, preserving its comments.\n\nKnown flags:" + known.String(),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !flags.Known(name) {
				return fmt.Errorf("unknown flag %q", name)
			}
			var enabled bool
			switch args[1] {
			case "on", "true":
				enabled = true
			case "off", "false":
			default:
				return fmt.Errorf("flag value must be on or off, got %q", args[1])
			}
			path := s.configTarget()
			if err := config.SetFlag(path, name, enabled); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s=%t in %s\n", name, enabled, path)
			return err
		},
	}
}
