package main

import (
	"fmt"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/stores"
	"bridge/relayer/internal/utils/signing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

func keysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the relay account key",
	}
	cmd.AddCommand(keysAddressCmd(opts), keysImportCmd(opts), keysSignCmd(opts))
	return cmd
}

func keysAddressCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the relay account address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSigner(opts.cfg)
			if err != nil {
				return err
			}
			fmt.Println(s.Address().Hex())
			return nil
		},
	}
}

func keysImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import the key file into the encrypted keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cfg.Keystore.Dir == "" || cfg.Keystore.Passphrase == "" {
				return errs.Configuration(nil, "keystore.dir and keystore.passphrase are required")
			}
			paths := cfg.KeyFiles
			if len(paths) == 0 {
				paths = stores.DefaultKeyPaths()
			}
			key, path, err := stores.LoadKeyFile(paths)
			if err != nil {
				return err
			}
			ks, err := stores.NewLocalKeyStore(cfg.Keystore.Passphrase, cfg.Keystore.Dir)
			if err != nil {
				return err
			}
			addr, err := ks.ImportECDSA(key)
			if err != nil {
				return err
			}
			fmt.Printf("imported %s from %s\n", addr, path)
			return nil
		},
	}
}

func keysSignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <0x-challenge>",
		Short: "Sign a hex challenge as a personal message with the relay key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			challenge, err := hexutil.Decode(args[0])
			if err != nil {
				return errs.Configuration(err, "challenge must be 0x-prefixed hex")
			}
			s, err := loadSigner(opts.cfg)
			if err != nil {
				return err
			}
			sig, err := signing.SignChallenge(cmd.Context(), s, challenge)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Address string `json:"address"`
				*signing.Signature
			}{s.Address().Hex(), sig})
		},
	}
}
