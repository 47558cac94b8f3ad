package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"stationd/internal/config"
	"stationd/internal/store"
	"stationd/internal/wifi"
)

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Inspect and edit the credential store",
}

func init() {
	credsCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the enabled flag, default network and stored networks",
			Args:  cobra.NoArgs,
			RunE:  withStore(showCreds),
		},
		&cobra.Command{
			Use:   "set <ssid> <password>",
			Short: "Store the password of a network",
			Args:  cobra.ExactArgs(2),
			RunE: withStore(func(cmd *cobra.Command, s store.Store, args []string) error {
				return s.SetPassword(args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "forget <ssid>",
			Short: "Delete the password of a network, and the default network if it is this one",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, s store.Store, args []string) error {
				var errs []error
				wifi.ForgetNetwork(s, args[0], func(op string, err error) {
					errs = append(errs, fmt.Errorf("%s: %w", op, err))
				})
				return errors.Join(errs...)
			}),
		},
		&cobra.Command{
			Use:   "default <ssid>",
			Short: "Set the network connected to at startup",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, s store.Store, args []string) error {
				return s.SetDefaultSSID(args[0])
			}),
		},
		&cobra.Command{
			Use:   "enable",
			Short: "Enable Wi-Fi at the next start",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, s store.Store, args []string) error {
				return s.SetEnabled(true)
			}),
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable Wi-Fi at the next start",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, s store.Store, args []string) error {
				return s.SetEnabled(false)
			}),
		},
	)
}

// withStore opens the configured store around fn
func withStore(fn func(*cobra.Command, store.Store, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log := logr.FromContextOrDiscard(cmd.Context())
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		s, err := store.Open(log.WithName("store"), cfg.StoreDriver, cfg.StorePath)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, s, args)
	}
}

func showCreds(cmd *cobra.Command, s store.Store, args []string) error {
	out := cmd.OutOrStdout()

	enabled, err := s.Enabled()
	if err != nil {
		return err
	}
	ssid, err := s.DefaultSSID()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "enabled: %v\n", enabled)
	fmt.Fprintf(out, "default: %q\n", ssid)

	lister, ok := s.(store.Lister)
	if !ok {
		// Keys are hashed, only the default network can be checked
		if ssid != "" {
			_, stored, err := s.Password(ssid)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "default has password: %v\n", stored)
		}
		return nil
	}
	ssids, err := lister.SSIDs()
	if err != nil {
		return err
	}
	sort.Strings(ssids)
	fmt.Fprintln(out, "networks:")
	for _, name := range ssids {
		fmt.Fprintf(out, "  %q\n", name)
	}
	return nil
}
