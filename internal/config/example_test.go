package config_test

import (
	"fmt"
	"log"
	"os"

	"github.com/rkm/pgstac-mosaic/internal/config"
)

func ExampleLoad() {
	os.Setenv("MOSAIC_BASE_URL", "https://tiles.example.com")
	os.Setenv("BACKEND_TYPE", "memory")
	defer os.Unsetenv("MOSAIC_BASE_URL")
	defer os.Unsetenv("BACKEND_TYPE")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Server: %s\n", cfg.Server.Address())
	fmt.Printf("Backend: %s\n", cfg.Backend.Type)
	fmt.Printf("Default Limit: %d\n", cfg.Mosaic.DefaultLimit)
	fmt.Printf("Cache-Control: %s\n", cfg.Cache.Control)

	// Output:
	// Server: 0.0.0.0:8080
	// Backend: memory
	// Default Limit: 10
	// Cache-Control: public, max-age=3600
}
