package main

import (
	"log"

	"github.com/geoclash/maptiles/internal/app"
	"github.com/geoclash/maptiles/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}
