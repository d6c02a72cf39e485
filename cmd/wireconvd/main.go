package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/wireconv/internal/converter"
	"github.com/danmuck/wireconv/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a wireconvd TOML config")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := converter.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wireconvd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	svc := converter.NewServiceWithConfig(cfg, nil)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "wireconvd: %v\n", err)
		os.Exit(1)
	}
}
