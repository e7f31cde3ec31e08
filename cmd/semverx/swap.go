package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/anvil-platform/semverx/internal/events"
	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/manifest"
)

func (c *cli) swapCmd() *cobra.Command {
	var payloadFile string
	var write bool
	cmd := &cobra.Command{
		Use:   "swap NAME VERSION",
		Short: "Hot-swap a manifest component and print the transaction trace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.loadCatalog()
			if err != nil {
				return err
			}
			current, err := cat.Get(args[0])
			if err != nil {
				return err
			}
			payload := current.Payload
			if payloadFile != "" {
				if payload, err = os.ReadFile(payloadFile); err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
			}

			rec := &events.Recorder{}
			engine := hotswap.New(cat, hotswap.WithSink(rec))
			tx, swapErr := engine.Swap(logr.NewContext(context.Background(), logr.Discard()), hotswap.Request{
				Name:    args[0],
				Version: args[1],
				Payload: payload,
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "transaction %s\n", tx.ID)
			for _, ev := range rec.Events() {
				line := "  " + ev.Phase
				if ev.Detail != "" {
					line += " " + ev.Detail
				}
				if ev.Error != "" {
					line += ": " + ev.Error
				}
				fmt.Fprintln(out, line)
			}
			if swapErr != nil {
				return swapErr
			}

			if !write {
				return nil
			}
			if c.v.GetBool("verbose") {
				fmt.Fprintf(out, "writing %s\n", c.v.GetString("manifest"))
			}
			return writeManifest(c.v.GetString("manifest"), manifest.FromRecords(cat.Export()))
		},
	}
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "file holding the new payload (default: keep the current payload)")
	cmd.Flags().BoolVar(&write, "write", false, "write the swapped catalog back to the manifest")
	return cmd
}

func writeManifest(path string, m *manifest.Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
