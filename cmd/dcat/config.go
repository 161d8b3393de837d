package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/config"
	"github.com/dogcat/dogcat/internal/configfile"
)

// projectKeys are the typed config.yaml keys, listed before any others.
var projectKeys = []string{"issue_prefix", "visible_namespaces", "hidden_namespaces", "auto-compact"}

func loadProjectConfig() *configfile.Config {
	cfg, err := configfile.Load(dogcatsDir)
	if err != nil {
		fatal(err)
	}
	if cfg == nil {
		cfg = configfile.DefaultConfig("")
	}
	return cfg
}

// projectSettings returns every key set in cfg with its string value.
func projectSettings(cfg *configfile.Config) map[string]string {
	out := map[string]string{}
	keys := append([]string{}, projectKeys...)
	for k := range cfg.Extra {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if v, ok := cfg.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the project configuration in .dogcats/config.yaml",
	Long: `Manage the project configuration in .dogcats/config.yaml.

Known keys:
  issue_prefix         Namespace for new issues
  visible_namespaces   Comma separated namespaces shown by default
  hidden_namespaces    Comma separated namespaces hidden by default
  auto-compact         Compact the log automatically (true/false)

Other keys are stored as given.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a config value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value, ok := loadProjectConfig().Get(args[0])
		if jsonOutput {
			result := map[string]interface{}{"key": args[0], "value": nil}
			if ok {
				result["value"] = value
			}
			outputJSON(result)
			return
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "%s is not set\n", args[0])
			os.Exit(1)
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadProjectConfig()
		if err := cfg.Set(args[0], args[1]); err != nil {
			fatal(err)
		}
		if err := cfg.Save(dogcatsDir); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": args[0], "value": args[1]})
			return
		}
		fmt.Printf("✓ Set %s = %s\n", args[0], args[1])
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a config value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadProjectConfig()
		if !cfg.Unset(args[0]) {
			fmt.Fprintf(os.Stderr, "%s is not set\n", args[0])
			os.Exit(1)
		}
		if err := cfg.Save(dogcatsDir); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": args[0], "status": "unset"})
			return
		}
		fmt.Printf("✓ Unset %s\n", args[0])
	},
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List config values",
	Long: `List the values in .dogcats/config.yaml. With --effective, list the
merged runtime settings from config files, DCAT_* environment variables
and defaults.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		effective, _ := cmd.Flags().GetBool("effective")
		if effective {
			settings := config.AllSettings()
			if jsonOutput {
				outputJSON(settings)
				return
			}
			if used := config.ConfigFileUsed(); used != "" {
				fmt.Printf("%s\n\n", dim("# "+used))
			}
			printSettings(settings)
			return
		}

		settings := projectSettings(loadProjectConfig())
		if jsonOutput {
			outputJSON(settings)
			return
		}
		if len(settings) == 0 {
			fmt.Println("No configuration set")
			return
		}
		m := make(map[string]interface{}, len(settings))
		for k, v := range settings {
			m[k] = v
		}
		printSettings(m)
	},
}

func printSettings(settings map[string]interface{}) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", fieldKey(k), formatValue(settings[k]))
	}
}

func init() {
	configListCmd.Flags().Bool("effective", false, "Show merged runtime settings")
	configCmd.AddCommand(configGetCmd, configSetCmd, configUnsetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
