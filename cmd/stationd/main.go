package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"stationd/internal/config"
	"stationd/internal/hlog"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:           config.Name,
	Short:         "Wi-Fi station connection daemon for iwd",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if file, _ := cmd.Flags().GetString("config"); file != "" {
			v.SetConfigFile(file)
		}
		if err := config.Read(v); err != nil {
			return err
		}
		log := hlog.New(hlog.Options{
			File:  v.GetString("log.file"),
			Debug: v.GetBool("log.debug"),
		})
		if used := v.ConfigFileUsed(); used != "" {
			log.V(1).Info("Loaded configuration", "file", used)
		}
		cmd.SetContext(logr.NewContext(cmd.Context(), log))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logr.FromContextOrDiscard(cmd.Context())
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if service.Interactive() {
			return runInteractive(cmd.Context(), log, cfg)
		}
		s, err := newSystemService(cmd.Context(), log, cfg)
		if err != nil {
			return err
		}
		return s.Run()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: search /etc/stationd, $HOME/.config/stationd, .)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-file", "", "rotating log file used when not attached to a terminal")
	flags.String("bus", config.SystemBus, "bus to export the service on: system or session")
	flags.String("interface", "", "wireless interface (default: first iwd station)")
	flags.String("store-driver", "", "credential store: sqlite, bolt or memory")
	flags.String("store-path", "", "credential store file")

	bind("debug", "log.debug")
	bind("log-file", "log.file")
	bind("bus", "bus")
	bind("interface", "interface")
	bind("store-driver", "store.driver")
	bind("store-path", "store.path")

	rootCmd.AddCommand(credsCmd, installCmd, uninstallCmd)
}

// bind ties a flag to a config key. An unset flag leaves the file, env or
// default value in place.
func bind(flag, key string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func main() {
	cobra.EnableTraverseRunHooks = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
