package main

import (
	"context"
	"log"

	"github.com/heliowatt/heliowatt/cmd/helioctl/cmd"
	"github.com/heliowatt/heliowatt/tracing"
)

func main() {
	tp, err := tracing.InitTracerProvider("heliowatt-helioctl")
	if err != nil {
		log.Fatalf("Failed to initialize TracerProvider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down TracerProvider: %v", err)
		}
	}()

	cmd.Execute()
}
