package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/offboardpro/offboardpro/api/bootstrap"
	"github.com/offboardpro/offboardpro/api/models"
)

var entitlementCmd = &cobra.Command{
	Use:   "entitlement",
	Short: "Inspect or downgrade a user's plan (support tooling)",
}

var entitlementGetCmd = &cobra.Command{
	Use:   "get <uid>",
	Short: "Print a user's entitlement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app()
		if err != nil {
			return err
		}
		e, err := a.Entitlements.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, e)
	},
}

var entitlementRevokeCmd = &cobra.Command{
	Use:   "revoke <uid>",
	Short: "Downgrade a user to the free plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app()
		if err != nil {
			return err
		}
		e, err := a.Entitlements.Revoke(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, e)
	},
}

func init() {
	entitlementCmd.AddCommand(entitlementGetCmd, entitlementRevokeCmd)
}

func app() (*bootstrap.App, error) {
	if _, err := loadConfig(); err != nil {
		return nil, err
	}
	if err := bootstrap.Ensure(); err != nil {
		return nil, err
	}
	return bootstrap.Get(), nil
}

func printJSON(cmd *cobra.Command, e models.Entitlement) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
