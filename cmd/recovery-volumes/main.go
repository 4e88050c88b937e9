package main

import (
	"errors"
	"log"
	"os"

	"github.com/UpCloudLtd/recovery-volumes/internal/recovery"
	"github.com/UpCloudLtd/recovery-volumes/internal/recovery/config"
	"github.com/spf13/pflag"
)

func main() {
	c, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if err := recovery.Run(c, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
