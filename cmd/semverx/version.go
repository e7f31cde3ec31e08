package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anvil-platform/semverx/internal/semver"
)

func (c *cli) parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse VERSION",
		Short: "Parse a SemVerX version and print its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := semver.Parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "canonical:  %s\n", v)
			fmt.Fprintf(out, "core:       %s\n", v.Core())
			fmt.Fprintf(out, "states:     %s/%s/%s\n", v.StateMajor, v.StateMinor, v.StatePatch)
			if v.Prerelease != "" {
				fmt.Fprintf(out, "prerelease: %s\n", v.Prerelease)
			}
			if v.Build != "" {
				fmt.Fprintf(out, "build:      %s\n", v.Build)
			}
			return nil
		},
	}
}

func (c *cli) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare A B",
		Short: "Print -1, 0 or 1 as A is lower than, equal to or higher than B",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := semver.Parse(args[0])
			if err != nil {
				return err
			}
			b, err := semver.Parse(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), semver.Compare(a, b))
			return nil
		},
	}
}

func (c *cli) satisfiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "satisfies VERSION CONSTRAINT",
		Short: "Check a version against a constraint such as ^1.2.0",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := semver.Parse(args[0])
			if err != nil {
				return err
			}
			cons, err := semver.ParseConstraint(args[1])
			if err != nil {
				return err
			}
			ok := semver.Satisfies(v, cons)
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			if !ok {
				return fmt.Errorf("%s does not satisfy %s", v, cons)
			}
			return nil
		},
	}
}

func (c *cli) canSwapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can-swap CURRENT TARGET",
		Short: "Report whether a component at CURRENT may be hot-swapped to TARGET",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := semver.Parse(args[0])
			if err != nil {
				return err
			}
			target, err := semver.Parse(args[1])
			if err != nil {
				return err
			}
			ok, reason := semver.SwapDecision(current, target)
			verdict := "allowed"
			if !ok {
				verdict = "denied"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verdict, reason)
			return nil
		},
	}
}
