// Command tiltlink pairs a desktop browser with a phone and relays the
// phone's tilt moves to the desktop.
//
// It supports two commands:
//  1. "serve" (default) – runs the HTTP server exposing the WebSocket endpoint,
//     the session API, static files and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server against a running tiltlink server, or
//     starts one in-process if none answers
//
// Flags control host/port, config file, logging, and optional ngrok tunneling
// so phones can reach a development machine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/tiltlink/api"
	"github.com/wricardo/tiltlink/config"
	"github.com/wricardo/tiltlink/game/pairing"
	"github.com/wricardo/tiltlink/game/relay"
	"github.com/wricardo/tiltlink/game/session"
	"github.com/wricardo/tiltlink/logging"
	"github.com/wricardo/tiltlink/transport/mcp"
	"github.com/wricardo/tiltlink/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "tiltlink"
)

func main() {
	// Load .env file if it exists, before flags read their env sources
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	cmd := newCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("tiltlink failed")
	}
}

// newCommand builds the CLI. Root flags are inherited by both subcommands.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "pair a desktop browser with a phone and relay its tilt moves",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "TOML config file",
				Sources: cli.EnvVars("CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "HTTP server host",
				Sources: cli.EnvVars("HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP server port",
				Value:   3000,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "public-url",
				Usage:   "base URL used in join links and QR codes",
				Sources: cli.EnvVars("PUBLIC_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "console or json",
				Value:   "console",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server with WebSocket, session API and MCP endpoint (default)",
				Action: runServe,
			},
			{
				Name:  "mcp",
				Usage: "run an MCP stdio server for inspecting sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Usage:   "tiltlink server to inspect (default http://localhost:<port>)",
						Sources: cli.EnvVars("TILTLINK_API_URL"),
					},
				},
				Action: runMCP,
			},
		},
		Action: runServe,
	}
}

// loadConfig reads the config file and applies flag and env overrides
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("public-url") {
		cfg.Server.PublicURL = cmd.String("public-url")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("ngrok") {
		cfg.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.Ngrok.Domain = cmd.String("ngrok-domain")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app holds the wired pairing stack
type app struct {
	hub      *websocket.Hub
	sessions *session.Manager
	pairing  *pairing.Service
	handler  http.Handler
}

// newApp wires the hub, registry, broadcaster and pairing service behind
// one HTTP handler. mcpBaseURL is the REST API the /mcp endpoint proxies to.
func newApp(cfg config.Config, mcpBaseURL string) *app {
	hub := websocket.NewHub(
		websocket.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		websocket.WithSendBuffer(cfg.Server.SendBuffer),
	)
	sessions := session.NewManager()
	svc := pairing.NewService(sessions, relay.NewBroadcaster(hub))

	connect := func(connID string) websocket.EventHandler {
		return svc.Connect(connID)
	}

	apiServer := api.NewServer(sessions, hub, connect,
		api.WithStaticDirs(cfg.Server.StaticDirs...),
		api.WithPublicURL(cfg.Server.PublicURL),
	)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcp.NewClient(mcpBaseURL)))

	return &app{
		hub:      hub,
		sessions: sessions,
		pairing:  svc,
		handler:  mainRouter,
	}
}

// mcpHandler answers JSON-RPC messages posted to /mcp
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// loopbackURL is the address the in-process MCP client uses to reach the API
func loopbackURL(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(cfg.Server.Port)))
}

// runServe starts the HTTP server and, if enabled, an ngrok tunnel, then
// blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.Init(AppName, cfg.Log.Level, cfg.Log.Format)

	shutdownTimeout, _ := cfg.ShutdownTimeout()
	addr := cfg.Addr()
	a := newApp(cfg, loopbackURL(cfg))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(ctx)
		close(hubDone)
	}()

	httpServer := newHTTPServer(addr, a.handler)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Info().
			Str("addr", addr).
			Str("version", Version).
			Msg("HTTP server listening")
		log.Info().Msgf("WebSocket: ws://%s/ws", addr)
		log.Info().Msgf("Session API: http://%s/api/sessions", addr)
		log.Info().Msgf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cfg.Ngrok, a.handler)
		}()
	}

	var runErr error
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-serveErr:
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	<-hubDone
	wg.Wait()
	log.Info().Int("sessions", a.sessions.Count()).Msg("server stopped")
	return runErr
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled
func runNgrok(ctx context.Context, cfg config.NgrokConfig, handler http.Handler) {
	log.Info().Msg("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		log.Info().Str("domain", cfg.Domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx,
		tunnel,
		ngrok.WithAuthtoken(cfg.AuthToken),
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	ngrokURL := tun.URL()
	log.Info().Str("url", ngrokURL).Msg("ngrok tunnel established")
	log.Info().Msgf("  Desktop (ngrok): %s/", ngrokURL)
	log.Info().Msgf("  WebSocket (ngrok): %s/ws", ngrokURL)

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// runMCP runs an MCP stdio server. It uses the tiltlink server at api-url
// if one answers; otherwise it starts the full server in-process on the
// configured address and inspects that.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.Init(AppName, cfg.Log.Level, cfg.Log.Format)

	baseURL := cmd.String("api-url")
	if baseURL == "" {
		baseURL = loopbackURL(cfg)
	}

	log.Info().Str("url", baseURL).Msg("checking for tiltlink server")
	if !serverAvailable(ctx, baseURL) {
		log.Info().Str("addr", cfg.Addr()).Msg("no server found, starting in-process server")

		listener, err := net.Listen("tcp", cfg.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
		}
		baseURL = loopbackURL(cfg)
		a := newApp(cfg, baseURL)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go a.hub.Run(ctx)

		httpServer := newHTTPServer("", a.handler)
		defer httpServer.Close()
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("in-process HTTP server error")
			}
		}()
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// serverAvailable reports whether a tiltlink server answers at baseURL
func serverAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
