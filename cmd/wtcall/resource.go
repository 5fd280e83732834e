package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marplemr/wt-contracts/identity"
)

func newResourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Manage resource records (owner, mediator, confirmation policy)",
	}
	cmd.AddCommand(
		newResourceRegisterCmd(),
		newResourceDeregisterCmd(),
		newResourceShowCmd(),
		newResourceListCmd(),
		newResourceSetMediatorCmd(),
		newResourceSetOwnerCmd(),
		newResourceSetPolicyCmd(),
	)
	return cmd
}

func newResourceRegisterCmd() *cobra.Command {
	var mediator string

	cmd := &cobra.Command{
		Use:   "register <address>",
		Short: "Register a resource; the acting identity becomes its owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			caller, err := actingCaller()
			if err != nil {
				return err
			}
			addr, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			var med identity.Address
			if mediator != "" {
				if med, err = identity.ParseAddress(mediator); err != nil {
					return err
				}
			}

			rec, err := a.svc.Register(cmd.Context(), caller, addr, med)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s owner=%s\n", rec.Address.Hex(), rec.Owner.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&mediator, "mediator", "", "mediator address (optional, settable once)")
	return cmd
}

func newResourceDeregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deregister <address>",
		Short: "Remove a resource record (owner-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			caller, err := actingCaller()
			if err != nil {
				return err
			}
			addr, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return a.svc.Deregister(cmd.Context(), caller, addr)
		},
	}
}

func newResourceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <address>",
		Short: "Show a resource record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			addr, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			rec, err := a.svc.Get(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"resource=%s owner=%s mediator=%s require_confirmation=%v\n",
				rec.Address.Hex(), rec.Owner.Hex(), rec.Mediator.Hex(), rec.RequireConfirmation)
			return nil
		},
	}
}

func newResourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.svc.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s owner=%s\n", rec.Address.Hex(), rec.Owner.Hex())
			}
			return nil
		},
	}
}

func newResourceSetMediatorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-mediator <address> <mediator>",
		Short: "Install the mediator for a resource (owner-only, once)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			caller, err := actingCaller()
			if err != nil {
				return err
			}
			addr, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			med, err := identity.ParseAddress(args[1])
			if err != nil {
				return err
			}
			return a.svc.SetMediator(cmd.Context(), caller, addr, med)
		},
	}
}

func newResourceSetOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-owner <address> <new-owner>",
		Short: "Transfer a resource to a new owner (owner-only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			caller, err := actingCaller()
			if err != nil {
				return err
			}
			addr, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			newOwner, err := identity.ParseAddress(args[1])
			if err != nil {
				return err
			}
			return a.svc.SetOwner(cmd.Context(), caller, addr, newOwner)
		},
	}
}

func newResourceSetPolicyCmd() *cobra.Command {
	var require bool

	cmd := &cobra.Command{
		Use:   "set-policy <address>",
		Short: "Set the confirmation policy for a resource (owner-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			caller, err := actingCaller()
			if err != nil {
				return err
			}
			addr, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return a.svc.SetConfirmationPolicy(cmd.Context(), caller, addr, require)
		},
	}
	cmd.Flags().BoolVar(&require, "require-confirmation", false, "require owner confirmation before execution")
	return cmd
}
