// Package cmd implements the register command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/config"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/presentation"
)

// skipConfigAnnotation marks commands that run before a config exists.
const skipConfigAnnotation = "register/skip-config"

var version = "dev"

// session is the state shared by one command invocation.
type session struct {
	cfgFile string
	// cfgPath is the file the config was read from, empty when running on
	// defaults and environment only.
	cfgPath  string
	cfg      config.Config
	v        *viper.Viper
	closeLog func()
	// serveMetrics keeps metrics.address; one-shot commands never listen.
	serveMetrics bool
}

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}

func newRootCmd() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:          "register",
		Short:        "Operate a multi-tenant register of sealed transaction dockets",
		Long:         `Inspect and maintain registers: create and delete them, verify docket chains, walk transaction chains and report statistics.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			return s.load(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if s.closeLog != nil {
				s.closeLog()
			}
		},
	}

	root.PersistentFlags().StringVarP(&s.cfgFile, "config", "c", "",
		"config file (default: .register/config.yaml, then ~/.config/register/config.yaml)")

	root.AddCommand(
		newMigrateCmd(s),
		newRegistersCmd(s),
		newVerifyCmd(s),
		newStatsCmd(s),
		newWalkCmd(s),
		newServeCmd(s),
		newConfigCmd(s),
	)
	return root
}

// load resolves the config file, reads it over defaults and environment and
// starts the category log when enabled. A log.path of "-" logs to stderr.
func (s *session) load(stderr io.Writer) error {
	v, err := config.NewViper()
	if err != nil {
		return err
	}
	s.v = v
	s.cfgPath = config.FindConfigFile(s.cfgFile)

	s.cfg, err = config.Load(v, s.cfgPath)
	if err != nil {
		return err
	}

	if s.cfg.Log.Enabled {
		level, err := log.ParseLevel(s.cfg.Log.Level)
		if err != nil {
			return err
		}
		if s.cfg.Log.Path == config.LogToStderr {
			s.closeLog = log.InitWriter(stderr)
		} else {
			cleanup, err := log.Init(s.cfg.Log.Path)
			if err != nil {
				return fmt.Errorf("starting log: %w", err)
			}
			s.closeLog = cleanup
		}
		log.SetMinLevel(level)
	}
	return nil
}

// configTarget is the file config commands write to.
func (s *session) configTarget() string {
	switch {
	case s.cfgFile != "":
		return s.cfgFile
	case s.cfgPath != "":
		return s.cfgPath
	default:
		return filepath.Join(config.DefaultConfigDir(), "config.yaml")
	}
}

// withApp opens the register core for the duration of fn.
func (s *session) withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	cfg := s.cfg
	if !s.serveMetrics {
		cfg.Metrics.Address = ""
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

func output(cmd *cobra.Command, v any) error {
	return presentation.NewFormatter(cmd.OutOrStdout()).Format(v)
}
