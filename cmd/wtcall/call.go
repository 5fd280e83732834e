package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/marplemr/wt-contracts/identity"
	"github.com/marplemr/wt-contracts/ops"
)

func newSubmitCmd() *cobra.Command {
	var (
		method      string
		argsJSON    string
		payloadFile string
	)

	cmd := &cobra.Command{
		Use:   "submit <resource>",
		Short: "Submit a wrapped operation; executes inline unless the resource requires confirmation",
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
			encoded, err := encodeOpFlag(resource, method, argsJSON)
			if err != nil {
				return err
			}

			var payload []byte
			if strings.TrimSpace(payloadFile) != "" {
				payload, err = os.ReadFile(payloadFile)
				if err != nil {
					return err
				}
			}

			fp, err := a.gate.Submit(cmd.Context(), caller, resource, encoded, payload)
			if fp != (common.Hash{}) {
				fmt.Fprintf(cmd.OutOrStdout(), "fingerprint %s\n", fp.Hex())
			}
			return err
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "operation method name")
	cmd.Flags().StringVar(&argsJSON, "args", "", "operation arguments as a JSON object")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "file holding the opaque payload for the owner")
	_ = cmd.MarkFlagRequired("method")
	return cmd
}

func newApproveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "approve <resource> <fingerprint>",
		Short: "Approve and execute a pending call (owner-only)",
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
			resource, err := identity.ParseAddress(args[0])
			if err != nil {
				return err
			}
			fp := common.HexToHash(args[1])

			if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
				ok, err := confirm(cmd, fmt.Sprintf("approve and execute %s on %s?", fp.Hex(), resource.Hex()))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted (record left pending)")
					return nil
				}
			}
			return a.gate.Continue(cmd.Context(), caller, resource, fp)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <fingerprint>",
		Short: "Show the stored record for a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.gate.Status(cmd.Context(), common.HexToHash(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"fingerprint=%s resource=%s submitter=%s approved=%v finalized=%v succeeded=%v\n",
				rec.Fingerprint.Hex(), rec.Resource.Hex(), rec.Submitter.Hex(),
				rec.Approved, rec.Finalized, rec.Succeeded)
			fmt.Fprintf(cmd.OutOrStdout(), "encoded_op=%s\n", string(rec.EncodedOp))
			return nil
		},
	}
}

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending [resource]",
		Short: "List unfinalized calls, optionally scoped to one resource",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var resource identity.Address
			if len(args) == 1 {
				if resource, err = identity.ParseAddress(args[0]); err != nil {
					return err
				}
			}
			recs, err := a.gate.Pending(cmd.Context(), resource)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s resource=%s submitter=%s approved=%v\n",
					rec.Fingerprint.Hex(), rec.Resource.Hex(), rec.Submitter.Hex(), rec.Approved)
			}
			return nil
		},
	}
}

func encodeOpFlag(resource identity.Address, method, argsJSON string) ([]byte, error) {
	op := ops.Op{Target: resource, Method: strings.TrimSpace(method)}
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &op.Args); err != nil {
			return nil, fmt.Errorf("parse --args: %w", err)
		}
	}
	return ops.Encode(op)
}

func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	var line string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
		return false, nil
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}
