package main

import (
	"fmt"

	"bridge/relayer/internal/utils/pow"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func mineCmd() *cobra.Command {
	var (
		difficulty int
		prev       string
	)
	cmd := &cobra.Command{
		Use:   "mine [tx...]",
		Short: "Search the smallest nonce whose block hash has enough trailing zero bits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			nonce, err := pow.FindNonce(ctx, difficulty, common.FromHex(prev), args)
			if err != nil {
				return err
			}
			fmt.Println(string(nonce))
			return nil
		},
	}
	cmd.Flags().IntVarP(&difficulty, "difficulty", "k", 16, "required trailing zero bits")
	cmd.Flags().StringVar(&prev, "prev", "", "previous block hash, hex")
	return cmd
}
