package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticeforge/fcbuild/internal/common"
)

// versionCmd prints build metadata.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print fcbuild's build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("fcbuild " + common.GetVersion())
		return nil
	},
}

func buildVersion() string {
	return common.GetVersion()
}
