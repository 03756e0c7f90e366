package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/dsclient"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/resolver"
)

// send <recipient> <message>: encrypt to the recipient and deliver
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <recipient> <message>",
		Short: "Encrypt and send a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			to, err := resolver.Normalize(args[0])
			if err != nil {
				return err
			}

			recipient, err := client.GetProfile(ctx, id.DeliveryServices, to)
			if dsclient.IsUnknownSession(err) {
				if err := client.AddPending(ctx, id.DeliveryServices, id.Account, to, id.token); err != nil {
					return err
				}
				fmt.Printf("%s has no profile yet; you will be told when it appears\n", to)
				return nil
			}
			if err != nil {
				return err
			}

			ciphertext, err := crypto.Encrypt(recipient.Profile.PublicEncryptionKey, []byte(args[1]))
			if err != nil {
				return err
			}
			routing, err := json.Marshal(models.DeliveryInformation{To: to, From: id.Account})
			if err != nil {
				return err
			}
			build := func(ds models.DeliveryServiceProfile) (models.EncryptionEnvelope, error) {
				sealed, err := crypto.Encrypt(ds.PublicEncryptionKey, routing)
				return models.EncryptionEnvelope{Message: ciphertext, DeliveryInformation: sealed}, err
			}

			ds, err := client.SubmitMessage(ctx, recipient.Profile, build, id.token)
			if err != nil {
				return err
			}
			fmt.Printf("delivered via %s\n", ds)
			return nil
		},
	}
}
