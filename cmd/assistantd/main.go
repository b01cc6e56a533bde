// Command assistantd serves the assistant core HTTP API and offers operator
// subcommands for identity migrations and link inspection.
//
//	@title			Assistant Core API
//	@version		1.0
//	@description	Identity registry, link codes, idempotent message ingestion and run admission.
//	@BasePath		/api/v1
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("assistantd failed")
		os.Exit(1)
	}
}
