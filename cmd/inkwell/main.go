// Copyright 2025 Inkwell Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command inkwell runs the grant-writing retrieval service.
//
// Usage:
//
//	inkwell serve --config inkwell.yaml
//	inkwell ingest ./corpus --programs Education --sensitivity-confirmed
//	inkwell reindex
//	inkwell cache-flush
//	inkwell migrate
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/logger"
)

// Exit codes follow the sysexits convention the deployment scripts
// expect.
const (
	exitOK          = 0
	exitBadInput    = 64
	exitUnavailable = 69
	exitInternal    = 70
	exitCancelled   = 130
)

// CLI defines the command-line interface.
type CLI struct {
	Version    VersionCmd    `cmd:"" help:"Show version information."`
	Serve      ServeCmd      `cmd:"" help:"Start the HTTP service."`
	Ingest     IngestCmd     `cmd:"" help:"Ingest a file or directory."`
	Reindex    ReindexCmd    `cmd:"" help:"Rebuild the keyword index from the vector store."`
	CacheFlush CacheFlushCmd `cmd:"" name:"cache-flush" help:"Clear the query cache."`
	Migrate    MigrateCmd    `cmd:"" help:"Create or update the metadata store schema."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	EnvFile   string `name:"env-file" help:"Path to .env file." default:".env"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(*runEnv) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("inkwell %s\n", version)
	return nil
}

// runEnv is what every command receives: the parsed config and a
// context cancelled on SIGINT/SIGTERM.
type runEnv struct {
	ctx context.Context
	cfg *config.Config
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("inkwell"),
		kong.Description("Retrieval-backed writing assistant for grant teams."),
		kong.UsageOnError(),
	)

	// Missing .env is fine; an unreadable one is not worth dying for.
	if err := godotenv.Load(cli.EnvFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load env file", "path", cli.EnvFile, "error", err)
	}

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBadInput)
	}
	logger.Init(level, os.Stderr, cli.LogFormat)

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBadInput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := kctx.Run(&runEnv{ctx: ctx, cfg: cfg}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := &config.Config{}
		cfg.SetDefaults()
		return cfg, nil
	}
	return config.Load(path)
}

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict:
		return exitBadInput
	case apperr.KindUnavailable, apperr.KindTransient:
		return exitUnavailable
	default:
		return exitInternal
	}
}
