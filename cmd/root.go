// Package cmd contains the nextpool command line interface
package cmd

import (
	"fmt"

	"github.com/nextdhcp/nextpool/dhcpmain"
	"github.com/spf13/cobra"
)

var (
	flagConf    string
	flagVersion bool
)

// Root is the root cobra command for nextpool
var Root = &cobra.Command{
	Use:           "nextpool",
	Short:         "A DHCPv4 server for a single subnet and address pool",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagVersion {
			fmt.Fprintf(cmd.OutOrStdout(), "nextpool %s\n", dhcpmain.Version)
			return nil
		}

		return dhcpmain.Run(flagConf)
	},
}

func init() {
	flags := Root.Flags()

	flags.StringVarP(&flagConf, "conf", "c", "", "Dhcpfile to load (default \"Dhcpfile\"), use \"stdin\" to read from standard input")
	flags.BoolVar(&flagVersion, "version", false, "Print the version and exit")
}
