package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCMD().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "researcher",
		Short:         "Generate evidence-backed research briefs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(
		runCMD(&cfgPath),
		serveCMD(&cfgPath),
		migrateCMD(&cfgPath),
		watchCMD(&cfgPath),
		tokenCMD(&cfgPath),
	)
	return root
}
