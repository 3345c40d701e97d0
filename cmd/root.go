package cmd

import (
	"fmt"
	"os"

	"github.com/emiliensocchi/aztop/internal/message"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	outputPath  string
	quietFlag   bool
	silentFlag  bool
	noColorFlag bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aztop",
	Short: "aztop builds CSV overviews of an Azure tenant's resources and their security posture.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		message.SetQuiet(quietFlag)
		message.SetSilent(silentFlag)
		if noColorFlag {
			message.SetNoColor(true)
		}
		message.Banner()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aztop.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "output", "directory receiving the CSV overviews")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress informational messages")
	rootCmd.PersistentFlags().BoolVar(&silentFlag, "silent", false, "suppress all messages")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")

	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".aztop" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".aztop")
	}

	viper.SetEnvPrefix("AZTOP")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
