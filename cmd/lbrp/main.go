// Command lbrp runs the reverse-proxy gateway: it loads the persisted JSON
// configuration, provisions the bootstrap admin account if requested, and
// drives the TLS listener and hot-reload loop until it receives a shutdown
// signal.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/impulse-sw/lbrp-go/internal/applog"
	"github.com/impulse-sw/lbrp-go/internal/auth"
	"github.com/impulse-sw/lbrp-go/internal/authclient"
	"github.com/impulse-sw/lbrp-go/internal/corsgate"
	"github.com/impulse-sw/lbrp-go/internal/errorpage"
	"github.com/impulse-sw/lbrp-go/internal/lifecycle"
	"github.com/impulse-sw/lbrp-go/internal/router"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file, using system environment variables")
	}

	logger := applog.Init(envOr("LBRP_LOG_LEVEL", "info"), os.Getenv("LBRP_LOG_PRETTY") == "1")

	configPath := envOr("LBRP_CONFIG_PATH", "lbrp-config.json")
	listenAddr := envOr("LBRP_LISTEN_ADDR", ":443")
	redirectAddr := envOr("LBRP_REDIRECT_ADDR", ":80")
	authBackend := envOr("LBRP_AUTH_BACKEND_URL", "")

	var authClient authclient.Client
	if authBackend != "" {
		authClient = authclient.NewHTTPClient(authBackend)
	} else {
		logger.Warn().Msg("LBRP_AUTH_BACKEND_URL not set, running with an in-memory fake auth back-channel")
		authClient = authclient.NewFakeClient()
	}

	if err := bootstrapAdmin(context.Background(), authClient); err != nil {
		logger.Fatal().Err(err).Msg("admin bootstrap failed")
	}

	driver := &lifecycle.Driver{
		ConfigPath:   configPath,
		ListenAddr:   listenAddr,
		RedirectAddr: redirectAddr,
		TLS: lifecycle.TLSConfig{
			Enabled:  os.Getenv("LBRP_TLS_DISABLE") != "1",
			CertFile: os.Getenv("LBRP_TLS_CERT"),
			KeyFile:  os.Getenv("LBRP_TLS_KEY"),
		},
		Deps: router.Deps{
			AuthClient:        authClient,
			ErrorSlot:         &errorpage.Slot{},
			CookieNames:       auth.DefaultCookieNames,
			FrontendIndexPath: envOr("LBRP_AUTH_FRONTEND_INDEX", "lbrp-auth-frontend/index.html"),
			FrontendBundleDir: envOr("LBRP_AUTH_FRONTEND_BUNDLE_DIR", "lbrp-auth-frontend"),
			CORSOpts: corsgate.Options{
				AllowedMethods:       []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:       []string{"Content-Type", "Authorization", "LBRP-Client"},
				AllowedClientHeaders: []string{"LBRP-Challenge", "LBRP-Challenge-State"},
			},
			Logger: logger,
		},
		Logger: logger,
	}

	if err := driver.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("lbrp exited")
	}
}

// bootstrapAdmin provisions the admin account named by §6's environment
// variables exactly once at process start, if both are present.
func bootstrapAdmin(ctx context.Context, client authclient.Client) error {
	pubKey := os.Getenv("LBRP_C3A_ADMCDPUB")
	password := os.Getenv("LBRP_C3A_ADMP")
	if pubKey == "" || password == "" {
		return nil
	}
	return client.ProvisionAdmin(ctx, []byte(pubKey), password)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
