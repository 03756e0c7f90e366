package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// login: answer a challenge for a fresh token
func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Obtain a new session token",
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
			signing, err := id.signing()
			if err != nil {
				return err
			}

			ds, token, err := client.ReAuth(cmd.Context(), p, id.Account, signing)
			if err != nil {
				return err
			}
			id.Tokens[ds] = token
			fmt.Printf("logged in on %s\n", ds)
			return id.save()
		},
	}
}
