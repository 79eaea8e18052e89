package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"hoyn/internal/di"
	"hoyn/internal/structures"
)

func main() {
	flags := &structures.CliFlags{}
	flag.StringVarP(&flags.ConfigPath, "config", "c", "config.yaml", "path to the yaml config file")
	flag.BoolVarP(&flags.DebugMode, "debug", "d", false, "debug logging to the console")
	envFile := flag.StringP("env", "e", ".env", "optional dotenv file with HOYN_* overrides")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load %s: %s\n", *envFile, err)
		os.Exit(1)
	}

	if info, err := os.Stat(flags.ConfigPath); err == nil {
		fmt.Printf("Config %s (%s)\n", flags.ConfigPath, humanize.Bytes(uint64(info.Size())))
	}

	// InitApp serves until SIGINT/SIGTERM
	_, cleanup, err := di.InitApp(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	cleanup()
}
