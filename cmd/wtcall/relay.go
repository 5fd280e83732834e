package main

import (
	"github.com/spf13/cobra"

	"github.com/marplemr/wt-contracts/identity"
	"github.com/marplemr/wt-contracts/proxy"
)

func newRelayCmd() *cobra.Command {
	var (
		method   string
		argsJSON string
	)

	cmd := &cobra.Command{
		Use:   "relay <resource>",
		Short: "Relay a mutating operation through the resource's mediator (owner-only)",
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
			resource, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			rec, err := a.svc.Get(cmd.Context(), resource)
			if err != nil {
				return err
			}
			encoded, err := encodeOpFlag(resource, method, argsJSON)
			if err != nil {
				return err
			}

			p := proxy.New(rec.Mediator, a.reg, a.disp, a.log)
			return p.Relay(cmd.Context(), caller, resource, encoded)
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "operation method name")
	cmd.Flags().StringVar(&argsJSON, "args", "", "operation arguments as a JSON object")
	_ = cmd.MarkFlagRequired("method")
	return cmd
}
