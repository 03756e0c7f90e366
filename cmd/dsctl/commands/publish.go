package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
)

// publish: sign the profile with the wallet and submit it
func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish the profile to its delivery services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			p, err := id.profile()
			if err != nil {
				return err
			}
			wallet, err := id.wallet()
			if err != nil {
				return err
			}
			msg, err := p.Canonical()
			if err != nil {
				return err
			}
			sig, err := crypto.SignPersonal(wallet, msg)
			if err != nil {
				return err
			}

			tokens, err := client.PublishProfile(cmd.Context(), id.Account, models.SignedUserProfile{Profile: p, Signature: sig})
			if err != nil {
				return err
			}
			for ds, token := range tokens {
				id.Tokens[ds] = token
				fmt.Printf("published on %s\n", ds)
			}
			return id.save()
		},
	}
}
