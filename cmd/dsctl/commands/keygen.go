package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/resolver"
)

// keygen: create wallet, signing and encryption keys
func keygenCmd() *cobra.Command {
	var (
		services []string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(services) == 0 {
				return errors.New("at least one --ds is required")
			}
			if _, err := os.Stat(identityPath()); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to replace it", identityPath())
			}
			for i, s := range services {
				n, err := resolver.Normalize(s)
				if err != nil {
					return err
				}
				services[i] = n
			}

			wallet, addr, err := crypto.GenerateWalletKey()
			if err != nil {
				return err
			}
			_, signing, err := crypto.GenerateSigningKey()
			if err != nil {
				return err
			}
			_, enc, err := crypto.GenerateEncryptionKey()
			if err != nil {
				return err
			}

			id := &identity{
				Account:          strings.ToLower(addr.Hex()),
				WalletKey:        fmt.Sprintf("%x", ethcrypto.FromECDSA(wallet)),
				SigningKey:       crypto.EncodeKey(signing),
				EncryptionKey:    crypto.EncodeKey(enc[:]),
				DeliveryServices: services,
				Tokens:           make(map[string]string),
			}
			if err := id.save(); err != nil {
				return err
			}
			fmt.Println(id.Account)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&services, "ds", nil, "delivery service, in preference order (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing identity")
	return cmd
}
