package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anvil-platform/semverx/internal/resolver"
)

var errUnhealthy = errors.New("unresolvable components")

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Resolve every manifest component and report resolution stress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.loadCatalog()
			if err != nil {
				return err
			}
			stress := resolver.NewStressMonitor()
			res, err := resolver.NewDefault(cat, resolver.WithStressMonitor(stress))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range cat.Registry().Names() {
				comp, err := cat.Get(name)
				if err != nil {
					return err
				}
				if _, err := res.Resolve(context.Background(), resolver.Request{Name: name, Version: comp.Version}); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", comp.ID(), err)
					continue
				}
				fmt.Fprintf(out, "ok   %s\n", comp.ID())
			}
			level := stress.Current()
			fmt.Fprintf(out, "stress %.2f (%s)\n", level, resolver.ZoneFor(level))
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errUnhealthy, failed, cat.Registry().Len())
			}
			return nil
		},
	}
}
