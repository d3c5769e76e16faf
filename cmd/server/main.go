package main

import (
	"context"
	"os"
	"time"

	"github.com/erauner12/dataverse-mcp/internal/dataverse"
	"github.com/erauner12/dataverse-mcp/internal/mcpserver"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	// .env is optional; environment variables win
	_ = godotenv.Load()

	// Configure structured logging. MCP protocol traffic runs on stdout, so
	// all logs must stay on stderr.
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "dataverse-mcp").Logger()

	// Pretty logging for local dev (only when explicitly set to "dev")
	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	var opts []dataverse.Option
	// National clouds (e.g. GCC High) use a different identity endpoint
	if host := env("DATAVERSE_AUTHORITY_HOST", ""); host != "" {
		opts = append(opts, dataverse.WithAuthorityHost(host))
	}

	client := dataverse.New(opts...)

	// Pre-configure from the environment when a full connection is provided.
	// A partial set of variables is ignored; the configure_dataverse tool can
	// still establish the connection at runtime.
	cfg := dataverse.Config{
		ServiceURL:   env("DATAVERSE_URL", ""),
		ClientID:     env("DATAVERSE_CLIENT_ID", ""),
		ClientSecret: env("DATAVERSE_CLIENT_SECRET", ""),
		TenantID:     env("DATAVERSE_TENANT_ID", ""),
	}
	if cfg.ServiceURL != "" && cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TenantID != "" {
		// Configuration is retained even if this validation fails; the error
		// is already logged by Configure
		_ = client.Configure(ctx, cfg)
	}

	srv := mcpserver.New(client)

	log.Info().Msg("starting MCP server on stdio")
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}

	log.Info().Msg("server stopped")
}
