package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "questctl",
		Short:         "Inspect quest locations and photos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(configFlag)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newExifCommand())
	rootCmd.AddCommand(newDistanceCommand())
	rootCmd.AddCommand(newClassifyCommand())

	return rootCmd
}

// loadConfig reads the optional config file, the environment always applies
func loadConfig(file string) error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("geoquest")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if file == "" {
		return nil
	}

	viper.SetConfigType("yaml")
	viper.SetConfigFile(file)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", file, err)
	}
	return nil
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
