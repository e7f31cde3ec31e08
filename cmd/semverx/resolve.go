package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anvil-platform/semverx/internal/resolver"
	"github.com/anvil-platform/semverx/internal/semver"
)

func (c *cli) resolveCmd() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "resolve NAME",
		Short: "Print the dependency-first load order of a manifest component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.loadCatalog()
			if err != nil {
				return err
			}
			current, err := cat.Get(args[0])
			if err != nil {
				return err
			}
			v := current.Version
			if version != "" {
				if v, err = semver.Parse(version); err != nil {
					return err
				}
			}
			res, err := resolver.NewDefault(cat)
			if err != nil {
				return err
			}
			plan, err := res.Resolve(context.Background(), resolver.Request{Name: args[0], Version: v})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, r := range plan.Order {
				fmt.Fprintf(out, "%d. %s\n", i+1, r)
			}
			for _, u := range plan.Diagnostics.UnresolvedOptional {
				fmt.Fprintf(out, "skipped optional %s -> %s (%s)\n", u.Requirer, u.Target, u.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to resolve the component at (default: its manifest version)")
	return cmd
}

func (c *cli) pathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path FROM TO",
		Short: "Print the cheapest dependency path between two manifest components",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.loadCatalog()
			if err != nil {
				return err
			}
			path, err := cat.Graph().ShortestPath(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(path, " -> "))
			return nil
		},
	}
}
