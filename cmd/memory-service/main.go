package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/Thianvelaz/Cognio/memoryservice"
)

func main() {
	if err := memoryservice.Run(); err != nil {
		log.Error().Err(err).Msg("memory-service exited with error")
		os.Exit(1)
	}
}
