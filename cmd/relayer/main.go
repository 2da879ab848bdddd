package main

import (
	"os"

	"bridge/relayer/internal/errs"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("[relayer] command failed")
		if errors.Is(err, errs.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
