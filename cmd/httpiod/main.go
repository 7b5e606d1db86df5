// Command httpiod is a demo HTTP server exercising pkg/http/server's
// dispatcher and pkg/websocket's server-side handshake: plain requests get
// echoed back as a text/plain body, and a GET /chat request that carries
// the WebSocket upgrade headers is promoted to a WebSocket connection that
// echoes every text/binary message it receives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/halprin/httpwire/internal/logger"
	"github.com/halprin/httpwire/pkg/http/server"
	"github.com/halprin/httpwire/pkg/metrics"
	"github.com/halprin/httpwire/pkg/websocket"
	"github.com/tzrikka/xdg"
)

const (
	ConfigDirName  = "httpiod"
	ConfigFileName = "config.toml"
	DefaultPort    = 8080
	chatPath       = "/chat"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "httpiod",
		Usage:   "demo HTTP server with a WebSocket echo endpoint",
		Version: bi.Main.Version,
		Flags:   flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			initLog(cmd.Bool("dev") || cmd.Bool("pretty-log"))
			return run(ctx, cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	addr := fmt.Sprintf(":%d", cmd.Int("port"))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	defer ln.Close()

	s := &server.Server{
		Handler: server.HandlerFunc(handle),
		Debug:   cmd.Bool("dev"),
	}

	slog.Info("httpiod listening", slog.String("addr", ln.Addr().String()))
	return s.Serve(ctx, ln)
}

// handle routes a request to the chat echo upgrade or the plain HTTP echo,
// combining the Server Dispatcher and WS Server Handshake components.
func handle(ctx context.Context, w *server.ResponseWriter, r *server.Request) {
	if r.Method == "GET" && r.URI == chatPath {
		handleChat(ctx, w, r)
		return
	}

	body, _ := r.Body.ReadAll()
	if len(body) == 0 {
		body = []byte("hello world")
	}

	_ = w.WriteStatus(200, "OK")
	_ = w.WriteHeader("Content-Type", "text/plain; charset=utf-8")
	_ = w.WriteBody(body)
}

// handleChat upgrades the connection and echoes every incoming message,
// counting each message once received and once echoed via
// [pkg/metrics.CountFrame].
func handleChat(ctx context.Context, w *server.ResponseWriter, r *server.Request) {
	l := logger.FromContext(ctx)
	metricsLog := zerolog.Nop()

	conn, err := websocket.Accept(ctx, w, r)
	if err != nil {
		l.Error("failed to accept WebSocket connection", slog.Any("error", err))
		return
	}

	for msg := range conn.IncomingMessages() {
		metrics.CountFrame(metricsLog, r.ConnID, "in", msg.Opcode.String(), len(msg.Data))

		var sendErr <-chan error
		switch msg.Opcode {
		case websocket.OpcodeBinary:
			sendErr = conn.SendBinaryMessage(msg.Data)
		default:
			sendErr = conn.SendTextMessage(msg.Data)
		}

		if err := <-sendErr; err != nil {
			l.Error("failed to echo WebSocket message", slog.Any("error", err))
			metrics.CountHandlerError(metricsLog, r.ConnID, err)
			return
		}
		metrics.CountFrame(metricsLog, r.ConnID, "out", msg.Opcode.String(), len(msg.Data))
	}
}

func flags() []cli.Flag {
	path := configFile()

	return []cli.Flag{
		&cli.IntFlag{
			Name:  "port",
			Usage: "local port number for the HTTP/WebSocket server",
			Value: DefaultPort,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("HTTPIOD_PORT"),
				toml.TOML("server.port", path),
			),
		},
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "simple setup, but unsafe for production (includes panic detail in 500 responses)",
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}

// configFile returns the path to the app's configuration file, creating an
// empty one if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

func initLog(devMode bool) {
	var handler slog.Handler
	if devMode {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})
	}
	slog.SetDefault(slog.New(handler))
}
