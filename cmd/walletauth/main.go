// Command walletauth serves the wallet token API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/hossein1376/walletauth"
	"github.com/hossein1376/walletauth/api"
	"github.com/hossein1376/walletauth/internal/config"
	"github.com/hossein1376/walletauth/internal/identity"
	"github.com/hossein1376/walletauth/internal/ledger"
	"github.com/hossein1376/walletauth/token"
)

func main() {
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	app := fx.New(
		fx.Supply(envPath(*envFile)),
		fx.Provide(
			loadConfig,
			newLogger,
			newCodec,
			newLedger,
			api.NewMetrics,
			newService,
			newServer,
		),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l.With(slog.String("component", "fx"))}
		}),
		fx.Invoke(register),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "walletauth:", err)
		os.Exit(1)
	}
	app.Run()
}

type envPath string

func loadConfig(path envPath) (*config.Config, error) {
	return config.Load(string(path))
}

func newLogger(cfg *config.Config) *slog.Logger {
	l := cfg.Logger()
	slog.SetDefault(l)
	return l
}

func newCodec(cfg *config.Config) (*token.Codec, error) {
	c, err := cfg.Cipher()
	if err != nil {
		return nil, err
	}
	return token.NewCodec(c), nil
}

func newLedger(cfg *config.Config, l *slog.Logger) *ledger.Client {
	return ledger.NewClient(
		cfg.Cluster,
		ledger.WithTimeout(cfg.RPCTimeout),
		ledger.WithLogger(l.With(slog.String("component", "ledger"))),
	)
}

// ledgerBalance adapts the ledger client to the service's balance gate.
func ledgerBalance(c *ledger.Client) walletauth.BalanceCheckerFunc {
	return func(ctx context.Context, addr identity.Address) (uint64, error) {
		return c.Balance(ctx, solana.PublicKeyFromBytes(addr.Bytes()))
	}
}

func newService(
	cfg *config.Config,
	codec *token.Codec,
	client *ledger.Client,
	metrics *api.Metrics,
	l *slog.Logger,
) *walletauth.Service {
	return walletauth.NewService(
		cfg.Salt,
		codec,
		walletauth.WithMinBalance(ledgerBalance(client), cfg.MinBalance),
		walletauth.WithLogger(l.With(slog.String("component", "service"))),
		walletauth.WithObserver(metrics),
	)
}

func newServer(
	cfg *config.Config, svc *walletauth.Service, metrics *api.Metrics, l *slog.Logger,
) *api.Server {
	return api.NewServer(
		cfg.Addr(),
		svc,
		api.WithLogger(l.With(slog.String("component", "api"))),
		api.WithMetrics(metrics),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
	)
}

func register(lc fx.Lifecycle, sd fx.Shutdowner, srv *api.Server, cfg *config.Config, l *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var listen net.ListenConfig
			ln, err := listen.Listen(ctx, "tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", srv.Addr, err)
			}
			l.Info("starting",
				slog.String("version", api.Version),
				slog.String("cluster", cfg.Cluster),
				slog.Uint64("min_balance", cfg.MinBalance),
				slog.String("token_cipher", cfg.TokenCipher),
			)
			go func() {
				if err := srv.Serve(ln); err != nil {
					l.Error("serve", slog.Any("err", err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Info("shutting down")
			return srv.Shutdown(ctx)
		},
	})
}
