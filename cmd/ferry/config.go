package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

const separator = "--------------------------------"

func newConfigCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "view",
		Short: "Pick a profile and print its settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return viewConfig(cmd.OutOrStdout(), opts)
		},
	})
	return cmd
}

func viewConfig(out io.Writer, opts *rootOpts) error {
	store, err := opts.store()
	if err != nil {
		return err
	}

	names := store.ProfileNames()
	if len(names) == 0 {
		_, err := fmt.Fprintf(out, "No configuration profiles found in %s\n", store.Path())
		return err
	}
	sort.Strings(names)

	name, ok, err := selectProfile(names)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	profile, found := store.Profile(name)
	if !found {
		_, err := fmt.Fprintf(out, "Profile `%s` is no longer available.\n", name)
		return err
	}

	keys := make([]string, 0, len(profile.Options))
	for k := range profile.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if _, err := fmt.Fprintf(out, "Profile: %s\n%s\n", profile.Name, separator); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(out, "%s = %s\n", k, profile.Options[k]); err != nil {
			return err
		}
	}
	return nil
}

// promptProfile shows an interactive list. ok is false when the user
// interrupts the prompt.
func promptProfile(names []string) (name string, ok bool, err error) {
	interrupted := false
	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions(names).
		WithDefaultText("Select a profile").
		WithOnInterruptFunc(func() { interrupted = true }).
		Show()
	if interrupted {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WithStack(err)
	}
	return choice, true, nil
}
