package main

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CONSULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "consult-client",
		Short: "Headless participant for video consultations",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool("debug") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().Bool("debug", false, "verbose logging")
	_ = v.BindPFlag("debug", root.PersistentFlags().Lookup("debug"))

	root.AddCommand(newJoinCmd(v))
	return root
}
