package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aussiebroadwan/policygate/internal/gateway/app"
)

func main() {
	showVersion := flag.Bool("version", false, "print the build version and exit")
	checkOnly := flag.Bool("check", false, "validate configuration from the environment and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.BuildVersion)
		return
	}

	cfg := app.LoadConfig()
	if *checkOnly {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
			os.Exit(1)
		}
		fmt.Println("configuration ok")
		return
	}

	gateway, err := app.New(cfg)
	if err != nil {
		log.Fatalf("policygate: init: %v", err)
	}

	if err := gateway.Run(); err != nil {
		log.Fatalf("policygate: %v", err)
	}
}
