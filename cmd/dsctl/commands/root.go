// Package commands implements the dsctl command line client
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xelth-com/dsrelay/internal/dsclient"
	"github.com/xelth-com/dsrelay/internal/resolver"
)

var (
	home          string
	directoryFile string

	dir    *resolver.Directory
	client *dsclient.Client
)

func Execute() error {
	root := &cobra.Command{
		Use:          "dsctl",
		Short:        "Client for encrypted delivery services",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				d, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(d, ".dsctl")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			if dir, err = resolver.LoadDirectory(directoryFile); err != nil {
				return err
			}
			client = dsclient.New(dir)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.dsctl)")
	root.PersistentFlags().StringVar(&directoryFile, "directory", os.Getenv("DS_PROFILES_FILE"), "JSON file with delivery-service profiles and account names")

	root.AddCommand(keygenCmd(), publishCmd(), loginCmd(), sendCmd(), fetchCmd())
	return root.Execute()
}
