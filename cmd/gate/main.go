package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/aussiebroadwan/schoolgate/internal/gate/app"
)

func main() {
	seed := flag.String("seed-master", "", "create a MASTER identity (email[:password]) and exit")
	flag.Parse()

	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if *seed != "" {
		email, password, _ := strings.Cut(*seed, ":")
		generated, err := application.Seed(context.Background(), email, password)
		_ = application.Close()
		if err != nil {
			log.Fatalf("failed to seed master: %v", err)
		}
		if password == "" {
			fmt.Printf("master %s created with password: %s\n", email, generated)
		}
		return
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
