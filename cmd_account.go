package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Offline account helpers",
	}
	cmd.AddCommand(newAccountNewCmd(), newAccountRecoverCmd())
	return cmd
}

func newAccountNewCmd() *cobra.Command {
	var words int
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a mnemonic and print the first derived account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			acc, err := ledger.NewAccount(words)
			if err != nil {
				return err
			}
			return printAccount(cmd, acc)
		},
	}
	cmd.Flags().IntVar(&words, "words", 12, "Mnemonic length (12 or 24)")
	return cmd
}

func newAccountRecoverCmd() *cobra.Command {
	var passphrase string
	cmd := &cobra.Command{
		Use:   "recover <mnemonic words...>",
		Short: "Derive the account at m/44'/60'/0'/0/0 from a mnemonic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := ledger.AccountFromMnemonic(strings.Join(args, " "), passphrase)
			if err != nil {
				return err
			}
			return printAccount(cmd, acc)
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Optional BIP-39 passphrase")
	return cmd
}

func printAccount(cmd *cobra.Command, acc *ledger.Account) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(newAccountResponse(acc))
}
