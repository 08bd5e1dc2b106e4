package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/remotectl/internal/config"
)

var defaultPaths = map[string]string{
	"server": "cmd/remotectl/server.toml",
	"client": "cmd/remotectl/client.toml",
	"seed":   "cmd/remotectl/seed.toml",
}

func main() {
	kind := flag.String("kind", "server", "config kind: server|client|seed")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	path, ok := defaultPaths[*kind]
	if !ok {
		log.Fatalf("unknown kind: %s", *kind)
	}

	if *validate {
		if *input != "" {
			path = *input
		}
		if err := validateFile(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	if *output != "" {
		path = *output
	}
	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, path)
}

func validateFile(kind, path string) error {
	switch kind {
	case "server":
		_, err := config.LoadServerConfig(path)
		return err
	case "seed":
		if filepath.Ext(path) == "" {
			path += ".toml"
		}
		_, err := config.LoadContextSeed(path)
		return err
	default:
		// field rules for client configs live in cmd/remotectl
		var raw map[string]any
		_, err := toml.DecodeFile(path, &raw)
		return err
	}
}
