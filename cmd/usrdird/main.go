package main

import (
	"log"

	"github.com/greenhouse-mgmt/usrdir/internal/app"
)

func main() {
	directoryServer, err := app.New()
	if err != nil {
		log.Fatalf("application init error: %v", err)
	}
	defer directoryServer.Close()

	if err := directoryServer.Run(); err != nil {
		log.Fatalf("application run error: %v", err)
	}
}
