package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marplemr/wt-contracts/identity"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Local key directory (public keys for out-of-band payload decryption)",
	}
	cmd.AddCommand(newKeysRegisterCmd(), newKeysLookupCmd())
	return cmd
}

func newKeysRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <address> <pubkey-hex>",
		Short: "Register a public key for an identity",
		Args:  cobra.ExactArgs(2),
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
			pub, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[1]), "0x"))
			if err != nil {
				return fmt.Errorf("parse public key: %w", err)
			}
			return a.keys.Register(cmd.Context(), addr, pub)
		},
	}
}

func newKeysLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <address>",
		Short: "Look up the registered public key for an identity",
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
			pub, err := a.keys.LookupPublicKey(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%s\n", hex.EncodeToString(pub))
			return nil
		},
	}
}
