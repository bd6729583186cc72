package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/ledger/application"
	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/presentation"
)

func newRegistersCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registers",
		Short: "List, create and delete registers",
	}
	cmd.AddCommand(
		newRegistersListCmd(s),
		newRegistersCreateCmd(s),
		newRegistersDeleteCmd(s),
		newRegistersStatusCmd(s),
	)
	return cmd
}

func newRegistersListCmd(s *session) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registers as JSON",
		Long: `List every register, or only one tenant's registers with --tenant.

Examples:
  register registers list
  register registers list --tenant acme | jq '.[].height'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				var (
					registers []*domain.Register
					err       error
				)
				if cmd.Flags().Changed("tenant") {
					registers, err = a.Registers.GetRegistersByTenant(cmd.Context(), tenant)
				} else {
					registers, err = a.Registers.GetAllRegisters(cmd.Context())
				}
				if err != nil {
					return err
				}
				return output(cmd, presentation.FromDomainRegisters(registers))
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Only list registers owned by this tenant")
	return cmd
}

func newRegistersCreateCmd(s *session) *cobra.Command {
	var (
		tenant string
		opts   = application.DefaultCreateRegisterOptions()
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a register",
		Long: `Create a register at height 0 and print it.

Examples:
  register registers create "Land Titles" --tenant acme
  register registers create audit --tenant acme --advertise --full-replica=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				r, err := a.Registers.CreateRegister(cmd.Context(), args[0], tenant, opts)
				if err != nil {
					return err
				}
				return output(cmd, presentation.FromDomainRegister(r))
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Owning tenant (required)")
	cmd.Flags().BoolVar(&opts.Advertise, "advertise", opts.Advertise, "Announce the register to peers")
	cmd.Flags().BoolVar(&opts.IsFullReplica, "full-replica", opts.IsFullReplica, "Hold the complete register")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newRegistersDeleteCmd(s *session) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "delete <registerId>",
		Short: "Delete a register owned by a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Registers.DeleteRegister(cmd.Context(), args[0], tenant); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant that owns the register (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newRegistersStatusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status <registerId> <offline|online|checking|recovery>",
		Short: "Set a register's replication status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				r, err := a.Registers.UpdateStatus(cmd.Context(), args[0], domain.RegisterStatus(args[1]))
				if err != nil {
					return err
				}
				return output(cmd, presentation.FromDomainRegister(r))
			})
		},
	}
}
