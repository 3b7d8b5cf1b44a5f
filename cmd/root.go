package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	Version = "0.1.0"
)

func showBanner() {
	greenColor := color.New(color.FgGreen, color.Bold)

	banner := []string{
		"╔══════════════════════════════════════════════════════════════╗",
		"║                                                              ║",
		"║     ██████╗ ██████╗  █████╗ ███████╗████████╗                ║",
		"║    ██╔════╝ ██╔══██╗██╔══██╗██╔════╝╚══██╔══╝                ║",
		"║    ██║  ███╗██████╔╝███████║█████╗     ██║    flow           ║",
		"║    ██║   ██║██╔══██╗██╔══██║██╔══╝     ██║                   ║",
		"║    ╚██████╔╝██║  ██║██║  ██║██║        ██║                   ║",
		"║     ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝        ╚═╝                   ║",
		"║                                                              ║",
		"║      Validated, tracked schema migrations between databases  ║",
		"║                                                              ║",
		"╚══════════════════════════════════════════════════════════════╝",
	}

	for _, line := range banner {
		greenColor.Println(line)
	}

	fmt.Print("                        ")
	color.New(color.FgCyan, color.Bold).Print("Version: ")
	color.New(color.FgYellow, color.Bold).Printf("%s\n", Version)
}

var rootCmd = &cobra.Command{
	Use:   "graftflow",
	Short: "Run validated, tracked schema migrations between database connections",
	Long: `
graftflow compares the schema of a source connection with a target
connection and migrates the target through five phases:

  1. validation    business rules run against the target
  2. backup        optional JSON dump of the target's data
  3. execution     the generated script, directly or in batches
  4. verification  completion, integrity, schema and corruption checks
  5. cleanup       temporary objects, metadata and connections

Database Support:
- PostgreSQL
- MySQL
- SQLite`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		showVersion, _ := cmd.Flags().GetBool("version")
		if showVersion {
			fmt.Printf("graftflow version %s\n", Version)
			os.Exit(0)
		}

		if len(args) == 0 {
			showBanner()
			fmt.Println()
			cmd.Help()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./graftflow.config.json)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log engine events at debug level")
	rootCmd.PersistentFlags().String("metrics-out", "", "Write prometheus metrics to this file when the command finishes")

	rootCmd.Flags().BoolP("version", "v", false, "Show CLI version")
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load(".env.local")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("json")
		viper.SetConfigName("graftflow.config")
	}

	viper.SetEnvPrefix("GRAFTFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			color.Yellow("⚠️  Could not read config file: %v", err)
		}
	}
}
