package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/jitrealm/server/internal/config"
	"github.com/jitrealm/server/internal/core/clock"
	"github.com/jitrealm/server/internal/game"
	gonet "github.com/jitrealm/server/internal/net"
	"github.com/jitrealm/server/internal/persist"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, version string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m  %-41s \033[36;1m│\033[0m\n", name+"  v"+version)
	fmt.Println("\033[36;1m  │\033[0m  world-as-code MUD driver                 \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	var (
		cfgPath       = flag.String("config", "config/server.toml", "config file path")
		createAccount = flag.String("create-account", "", "create a player account and exit")
		wizard        = flag.Bool("wizard", false, "grant wizard to the created account")

		bench       = flag.Bool("perfbench", false, "run the headless scheduler benchmark and exit")
		benchBP     = flag.String("blueprint", "daemons/time_d", "bench: blueprint to clone")
		benchCount  = flag.Int("count", 1000, "bench: instances to clone")
		benchTicks  = flag.Int("ticks", 600, "bench: ticks to simulate")
		loopDelayMs = flag.Int("loopDelayMs", 0, "bench: simulated tick length (0 = config value)")
		noCallouts  = flag.Bool("noCallouts", false, "bench: skip the callout scheduler")
		safeInvoke  = flag.Bool("safeInvoke", true, "bench: route calls through the budgeted invoker")
	)
	var (
		serverMode bool
		port       int
		player     string
		password   string
	)
	flag.BoolVar(&serverMode, "server", false, "multi-user network mode (default is a single-user console)")
	flag.BoolVar(&serverMode, "s", false, "shorthand for -server")
	flag.IntVar(&port, "port", 0, "override listen port")
	flag.IntVar(&port, "p", 0, "shorthand for -port")
	flag.StringVar(&player, "player", "", "console mode: log in as this player")
	flag.StringVar(&player, "u", "", "shorthand for -player")
	flag.StringVar(&password, "password", "", "console mode: password for -player")
	flag.StringVar(&password, "pw", "", "shorthand for -password")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if *createAccount != "" {
		return createAccountCmd(cfg, *createAccount, *wizard)
	}

	if *bench {
		if *loopDelayMs == 0 {
			*loopDelayMs = cfg.GameLoop.LoopDelayMs
		}
		g, err := game.New(cfg, clock.NewManual(time.Now()), log)
		if err != nil {
			return err
		}
		return g.RunBench(game.BenchOptions{
			Blueprint:   *benchBP,
			Count:       *benchCount,
			Ticks:       *benchTicks,
			LoopDelayMs: *loopDelayMs,
			NoCallouts:  *noCallouts,
			SafeInvoke:  *safeInvoke,
		})
	}

	printBanner(cfg.Server.MudName, cfg.Server.Version)

	g, err := game.New(cfg, clock.NewSystem(), log)
	if err != nil {
		return fmt.Errorf("build driver: %w", err)
	}

	if cfg.Memory.Enabled {
		printSection("memory store")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := g.EnableMemory(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("memory store: %w", err)
		}
		printOK("PostgreSQL connected, migrations applied")
		fmt.Println()
	}

	printSection("world")
	if err := g.Boot(); err != nil {
		return fmt.Errorf("boot world: %w", err)
	}
	printOK("world compiled")
	fmt.Println()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	if !serverMode {
		if player != "" {
			g.SetAutoLogin(player, password)
		}
		console, err := gonet.NewConsole(
			cfg.Terminal.DefaultAnsi, cfg.Terminal.DefaultUnicode, log)
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		// A hangup on the console is a shutdown request.
		go func() {
			<-console.Gone()
			sig <- syscall.SIGTERM
		}()
		return g.Run(console, sig)
	}

	server, err := gonet.NewServer(
		fmt.Sprintf(":%d", cfg.Server.Port),
		cfg.Server.MaxConnections,
		cfg.Terminal.DefaultAnsi,
		cfg.Terminal.DefaultUnicode,
		log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go server.AcceptLoop()

	printSection("server ready")
	printReady(fmt.Sprintf("listening on %s", server.Addr()))
	printReady(fmt.Sprintf("tick %dms, heartbeat default %ds",
		cfg.GameLoop.LoopDelayMs, cfg.GameLoop.DefaultHeartbeatSeconds))
	fmt.Println()

	return g.Run(server, sig)
}

// createAccountCmd makes an account from the operator's terminal with a
// hidden password prompt. Handy for seeding the first wizard.
func createAccountCmd(cfg *config.Config, name string, wizard bool) error {
	if !persist.ValidName(name) {
		return fmt.Errorf("invalid name %q: 3-20 letters and digits, letter first", name)
	}
	fmt.Printf("Password for %s: ", name)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	fmt.Print("Confirm: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if string(pass) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	accounts := persist.NewAccounts(cfg.Paths.PlayersDirectory)
	if _, err := accounts.Create(name, string(pass), wizard); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	fmt.Printf("account %s created (wizard: %v)\n", name, wizard)
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
