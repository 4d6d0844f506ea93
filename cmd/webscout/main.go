package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"webscout/internal/adapter/mcpserver"
	"webscout/internal/adapter/tool"
	"webscout/internal/infra/config"
	"webscout/internal/infra/logger"
	"webscout/internal/infra/tracer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	flags, args := parseArgs(os.Args[1:])

	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "help", "--help", "-h":
		showUsage(os.Stdout)
		return
	case "version", "--version":
		fmt.Printf("webscout %s\n", version)
		return
	case "serve":
		err = runServe(flags)
	case "search":
		err = runSearch(flags, args)
	case "top":
		err = runTop(flags, args)
	case "fetch":
		err = runFetch(flags, args)
	case "doctor":
		err = runDoctor(flags)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'webscout help' for usage information.\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprint(w, `webscout - web and document search tools for language-model agents, served over MCP

USAGE:
    webscout [COMMAND] [FLAGS] [ARGS]

COMMANDS:
    serve           Run the MCP server (default)
    search QUERY    Print the formatted result list for QUERY
    top QUERY       Print the cleaned text of the top result for QUERY
    fetch URL       Print the cleaned text of URL
    doctor          Check configuration and connectivity
    version         Print the version
    help            Show this help message

FLAGS:
    --config PATH       Config file (default: ./webscout.yaml, or $WEBSCOUT_CONFIG)
    --transport NAME    Server transport: http or stdio
    --addr ADDR         HTTP listen address (default: :8000)
    --max N             Number of results for 'search' (1-20)

CONFIGURATION:
    Config file: ./webscout.yaml (optional)
    Environment: WEBSCOUT_* variables override config

EXAMPLES:
    webscout                                  # MCP over streamable HTTP on :8000/mcp
    webscout serve --transport stdio          # MCP over stdin/stdout
    webscout search --max 3 "go generics"
    webscout top "latest go release"
    webscout fetch https://go.dev/doc/
`)
}

// cliFlags holds flags shared by every command.
type cliFlags struct {
	Config    string
	Transport string
	Addr      string
	Max       int
}

// parseArgs separates --flag / --flag=value pairs from positional arguments.
func parseArgs(argv []string) (cliFlags, []string) {
	var flags cliFlags
	var rest []string
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--transport", "--addr", "--max":
		default:
			rest = append(rest, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(argv) {
				continue
			}
			i++
			value = argv[i]
		}
		switch name {
		case "--config":
			flags.Config = value
		case "--transport":
			flags.Transport = value
		case "--addr":
			flags.Addr = value
		case "--max":
			if n, err := strconv.Atoi(value); err == nil {
				flags.Max = n
			}
		}
	}
	return flags, rest
}

func configPath(flags cliFlags) string {
	if flags.Config != "" {
		return flags.Config
	}
	if p := os.Getenv("WEBSCOUT_CONFIG"); p != "" {
		return p
	}
	return "webscout.yaml"
}

// loadConfig loads the config file and applies CLI flag overrides.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, err
	}
	if flags.Transport != "" {
		cfg.Server.Transport = flags.Transport
	}
	if flags.Addr != "" {
		cfg.Server.Addr = flags.Addr
	}
	if flags.Transport != "" || flags.Addr != "" {
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	// stdout carries the protocol in stdio mode.
	if cfg.Server.Transport == "stdio" && cfg.Logger.Output == "stdout" {
		cfg.Logger.Output = "stderr"
	}
	return cfg, nil
}

func runServe(flags cliFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, version, os.Stderr)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := mcpserver.New(app.Registry, cfg.Server, version, log)
	switch cfg.Server.Transport {
	case "stdio":
		return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	default:
		if cfg.Server.MDNS.Enabled {
			go func() {
				if err := srv.Advertise(ctx); err != nil {
					log.Warn("mdns advertisement unavailable", "error", err)
				}
			}()
		}
		return srv.ServeHTTP(ctx)
	}
}

// oneShot builds the app for a single CLI command.
func oneShot(flags cliFlags, run func(ctx context.Context, app *app) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, version, os.Stderr)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// One-shot commands never talk to the document index.
	cfg.Docs.Enabled = false
	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(ctx, app)
}

var errUsage = errors.New("missing argument, see 'webscout help'")

func runSearch(flags cliFlags, args []string) error {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return errUsage
	}
	return oneShot(flags, func(ctx context.Context, app *app) error {
		n := flags.Max
		if n < 1 || n > 20 {
			n = app.Config.Search.DefaultMaxResults
		}
		fmt.Println(app.Service.Search(ctx, query, n))
		return nil
	})
}

func runTop(flags cliFlags, args []string) error {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return errUsage
	}
	return oneShot(flags, func(ctx context.Context, app *app) error {
		fmt.Println(app.Service.FetchTop(ctx, query))
		return nil
	})
}

func runFetch(flags cliFlags, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return oneShot(flags, func(ctx context.Context, app *app) error {
		text, err := app.Fetcher.Fetch(ctx, args[0])
		fmt.Println(tool.DescribeFetchResult(text, err))
		return err
	})
}
