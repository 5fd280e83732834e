package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marplemr/wt-contracts/identity"
)

func newChildrenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "children",
		Short: "Manage a parent's authorized child set (owner-only)",
	}
	cmd.AddCommand(
		newChildrenAddCmd(),
		newChildrenRemoveCmd(),
		newChildrenListCmd(),
	)
	return cmd
}

func newChildrenAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <parent> <child>",
		Short: "Authorize a child to call parent-restricted operations",
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
			parent, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			child, err := identity.ParseAddress(args[1])
			if err != nil {
				return err
			}
			return a.svc.AddChild(cmd.Context(), caller, parent, child)
		},
	}
}

func newChildrenRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <parent> <child>",
		Short: "Revoke a child authorization, effective immediately",
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
			parent, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			child, err := identity.ParseAddress(args[1])
			if err != nil {
				return err
			}
			return a.svc.RemoveChild(cmd.Context(), caller, parent, child)
		},
	}
}

func newChildrenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <parent>",
		Short: "List the current child set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			parent, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			children, err := a.svc.Children(cmd.Context(), parent)
			if err != nil {
				return err
			}
			for _, child := range children {
				fmt.Fprintln(cmd.OutOrStdout(), child.Hex())
			}
			return nil
		},
	}
}
