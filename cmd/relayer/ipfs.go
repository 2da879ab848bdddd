package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bridge/relayer/internal/clients"
	"bridge/relayer/internal/errs"

	"github.com/spf13/cobra"
)

func ipfsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipfs",
		Short: "Store and fetch JSON blobs through the pinning service",
	}
	cmd.AddCommand(ipfsPinCmd(opts), ipfsGetCmd(opts))
	return cmd
}

func pinningClient(opts *rootOptions) *clients.PinningClient {
	p := opts.cfg.Pinning
	return clients.NewPinningClient(p.APIURL, p.GatewayURL, p.JWT)
}

func ipfsPinCmd(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "pin <file.json>",
		Short: "Pin a JSON object and print its CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Pinning.JWT == "" {
				return errs.Configuration(nil, "pinning.jwt is required")
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var content map[string]any
			if err := json.Unmarshal(raw, &content); err != nil {
				return errs.Configuration(err, "%s is not a JSON object", args[0])
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			cid, err := pinningClient(opts).PinJSON(cmd.Context(), name, content)
			if err != nil {
				return err
			}
			fmt.Println(cid)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "pin name (default: file name)")
	return cmd
}

func ipfsGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch a JSON object by CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := pinningClient(opts).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(obj)
		},
	}
}
