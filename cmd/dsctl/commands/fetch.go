package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/delivery"
	"github.com/xelth-com/dsrelay/internal/resolver"
)

// fetch <contact>: read and verify a conversation
func fetchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "fetch <contact>",
		Short: "Fetch and decrypt the conversation with a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			contact, err := resolver.Normalize(args[0])
			if err != nil {
				return err
			}
			p, err := id.profile()
			if err != nil {
				return err
			}
			key, err := id.encryption()
			if err != nil {
				return err
			}

			envs, ds, err := client.FetchMessages(ctx, p, id.Account, contact, limit, id.token)
			if err != nil {
				return err
			}
			service, err := dir.ResolveDeliveryServiceProfile(ctx, ds)
			if err != nil {
				return err
			}

			for _, env := range envs {
				plain, err := crypto.Decrypt(key, env.Message)
				if err != nil {
					// sent by us, sealed to the contact
					fmt.Println("[outgoing]")
					continue
				}
				stamp := "unverified"
				if pm, err := delivery.OpenPostmark(key, env); err == nil && delivery.VerifyPostmark(service.PublicSigningKey, pm, env.Message) {
					stamp = time.UnixMilli(pm.IncomingTimestamp).Format(time.RFC3339)
				}
				fmt.Printf("[%s] %s\n", stamp, plain)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages (0 for the service default)")
	return cmd
}
