package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/remotectl/internal/auth"
	"github.com/danmuck/remotectl/internal/client"
	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/config"
	"github.com/danmuck/remotectl/internal/observability"
	"github.com/danmuck/remotectl/internal/ops"
	"github.com/danmuck/remotectl/internal/ops/builtin"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/server"
	"github.com/danmuck/remotectl/internal/storage"
	"github.com/danmuck/remotectl/internal/transport"
	"github.com/danmuck/remotectl/internal/transport/httpx"
	"github.com/danmuck/remotectl/internal/transport/stdio"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const usage = `usage: remotectl <command> [flags]

commands:
  serve     run the HTTP receiver
  receive   execute one chain read from stdin and write its result to stdout
  exec      build a chain from fragments, send it and print the value

fragments (exec):
  name              operation with no bound arguments
  name=ARGS         ARGS is a YAML scalar or flow sequence, e.g. math.add=1 or text.format=["n=%d"]
  lua:name[=ARGS]   script loaded from <scripts>/name.lua
`

// limiterIdleTTL is how long a quiet client's bucket is kept.
const limiterIdleTTL = 10 * time.Minute

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "%s", usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "receive":
		err = runReceive(os.Args[2:])
	case "exec":
		err = runExec(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprintf(os.Stdout, "%s", usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "remotectl: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "remotectl: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	path := flags.String("config", "", "server config path (TOML)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger := observability.InitLogger("remotectl")
	cfg, err := config.LoadServerConfig(*path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupTracing(ctx, cfg.NodeID, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	opsReg, err := builtinOps()
	if err != nil {
		return err
	}
	recv, err := newReceiver(cfg, opsReg)
	if err != nil {
		return err
	}

	var limiter *httpx.MapLimiter
	if cfg.RateRPS > 0 {
		limiter = httpx.NewMapLimiter(cfg.RateRPS, cfg.RateBurst, limiterIdleTTL)
	}
	routes := httpx.RouterConfig{
		NodeID:      cfg.NodeID,
		Path:        cfg.Path,
		CORSOrigins: cfg.CorsOrigins,
		Ops:         opsReg,
	}
	if cfg.AuthToken != "" {
		routes.Auth = auth.StaticToken{Token: cfg.AuthToken}
	}
	router := httpx.NewRouter(routes, httpx.NewHandler(recv, cfg.Limits(), limiter))

	logger.Info().
		Str("node", cfg.NodeID).
		Str("addr", cfg.Addr).
		Str("path", cfg.Path).
		Bool("auth", routes.Auth != nil).
		Strs("dialects", dialectNames(recv)).
		Msg("receiver started")
	return httpx.ListenAndServe(ctx, httpx.NewServer(cfg.Addr, router))
}

func runReceive(args []string) error {
	flags := flag.NewFlagSet("receive", flag.ContinueOnError)
	path := flags.String("config", "", "server config path (TOML)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// stdout carries the result; logging stays on stderr.
	observability.InitLogger("remotectl-receive")
	cfg, err := config.LoadServerConfig(*path)
	if err != nil {
		return err
	}
	opsReg, err := builtinOps()
	if err != nil {
		return err
	}
	recv, err := newReceiver(cfg, opsReg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return stdio.Serve(ctx, recv, os.Stdin, os.Stdout)
}

func builtinOps() (*ops.Registry, error) {
	reg := ops.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func newReceiver(cfg config.ServerConfig, opsReg *ops.Registry) (*server.Receiver, error) {
	contexts := storage.Empty()
	if cfg.ContextSeed != "" {
		seed, err := config.LoadContextSeed(cfg.ContextSeed)
		if err != nil {
			return nil, err
		}
		contexts = storage.Seeded(seed)
		log.Info().Str("path", cfg.ContextSeed).Int("keys", len(seed)).Msg("loaded context seed")
	}
	return server.NewStandard(server.Config{
		Ops:      opsReg,
		Contexts: contexts,
		Limits:   cfg.Limits(),
	})
}

func dialectNames(recv *server.Receiver) []string {
	dialects := recv.Dialects()
	out := make([]string, 0, len(dialects))
	for _, d := range dialects {
		out = append(out, string(d))
	}
	return out
}

func runExec(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("exec", flag.ContinueOnError)
	path := flags.String("config", "", "client config path (TOML)")
	use := flags.String("use", "", "comma separated scripts shipped with the chain as dependencies")
	policy := flags.String("policy", "", "unrepresentable result policy: error|null|string")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("exec: at least one fragment is required")
	}

	observability.InitLogger("remotectl-exec")
	cfg, err := loadClientConfig(*path)
	if err != nil {
		return err
	}
	if *policy != "" {
		if cfg.Policy, err = parsePolicy(*policy); err != nil {
			return err
		}
	}

	reg := codec.NewRegistry()
	if err := builtin.RegisterTypes(reg); err != nil {
		return err
	}
	t, err := newTransport(cfg, reg)
	if err != nil {
		return err
	}

	catalog := client.NewFSCatalog(os.DirFS(cfg.Scripts))
	fragments, err := parseFragments(catalog, flags.Args())
	if err != nil {
		return err
	}
	used, err := parseUsed(catalog, *use)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc := client.New(t, reg, client.WithPolicy(cfg.Policy), client.WithCatalog(catalog))
	v, err := rc.ExecUsing(ctx, used, fragments...)
	if err != nil {
		return err
	}
	return printValue(out, v)
}

func newTransport(cfg clientConfig, reg *codec.Registry) (transport.Transport, error) {
	switch cfg.Transport {
	case transportHTTP:
		opts := []httpx.TransportOption{httpx.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})}
		if cfg.H2C {
			opts = append(opts, httpx.WithH2C())
		}
		if cfg.Token != "" {
			opts = append(opts, httpx.WithToken(cfg.Token))
		}
		return httpx.NewTransport(cfg.URL, reg, opts...), nil
	case transportExec:
		return stdio.NewTransport(stdio.LocalRunner{}, reg, frame.DefaultLimits(), cfg.Command...), nil
	case transportSSH:
		runner := stdio.SSHRunner{
			Host:                        cfg.SSH.Host,
			Port:                        cfg.SSH.Port,
			User:                        cfg.SSH.User,
			KeyPath:                     cfg.SSH.KeyPath,
			KnownHostsPath:              cfg.SSH.KnownHostsPath,
			InsecureSkipHostKeyChecking: cfg.SSH.InsecureSkipHostKeyChecking,
			Timeout:                     cfg.Timeout,
		}
		return stdio.NewTransport(runner, reg, frame.DefaultLimits(), cfg.Command...), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// parseFragments turns each command line argument into a fragment.
func parseFragments(catalog *client.FSCatalog, args []string) ([]*client.Fragment, error) {
	out := make([]*client.Fragment, 0, len(args))
	for _, arg := range args {
		f, err := parseFragment(catalog, arg)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseFragment(catalog *client.FSCatalog, arg string) (*client.Fragment, error) {
	name, raw, hasArgs := strings.Cut(strings.TrimSpace(arg), "=")
	var args []any
	if hasArgs {
		var err error
		if args, err = parseArgs(raw); err != nil {
			return nil, fmt.Errorf("fragment %q: %w", arg, err)
		}
	}
	if script, ok := strings.CutPrefix(name, "lua:"); ok {
		if script == "" {
			return nil, fmt.Errorf("fragment %q: missing script name", arg)
		}
		return catalog.Script(script, args...)
	}
	if name == "" {
		return nil, fmt.Errorf("fragment %q: missing operation name", arg)
	}
	return client.Op(name, args...), nil
}

// parseArgs reads a YAML scalar as one argument and a sequence as several.
func parseArgs(raw string) ([]any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	if seq, ok := v.([]any); ok {
		return seq, nil
	}
	return []any{v}, nil
}

func parseUsed(catalog *client.FSCatalog, list string) ([]*client.Fragment, error) {
	var used []*client.Fragment
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		f, err := catalog.Script(name)
		if err != nil {
			return nil, err
		}
		used = append(used, f)
	}
	return used, nil
}

func printValue(out io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		_, err = fmt.Fprintf(out, "%v\n", v)
		return err
	}
	_, err = out.Write(data)
	return err
}
