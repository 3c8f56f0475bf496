// Command poold is the mining pool coordinator process: it wires
// Components A-I together and serves the §6 WebSocket and HTTP surfaces.
// Grounded on cmd/kcn/main.go's cli.App + flag-var + run(ctx) shape, using
// the same gopkg.in/urfave/cli.v1 dependency.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"

	"github.com/minepool/coordinator/aggregate"
	"github.com/minepool/coordinator/chain"
	"github.com/minepool/coordinator/chainwatch"
	"github.com/minepool/coordinator/dispatch"
	"github.com/minepool/coordinator/epoch"
	"github.com/minepool/coordinator/httpapi"
	"github.com/minepool/coordinator/nonce"
	"github.com/minepool/coordinator/pow"
	"github.com/minepool/coordinator/registry"
	"github.com/minepool/coordinator/reward"
	"github.com/minepool/coordinator/sharedstate"
	"github.com/minepool/coordinator/store"
	"github.com/minepool/coordinator/submit"
	"github.com/minepool/coordinator/wsserver"
)

// listenAddr is the §6 fixed bind address.
const listenAddr = "0.0.0.0:3000"

var (
	priorityFeeFlag = cli.Int64Flag{
		Name:  "priority-fee",
		Usage: "starting priority fee in micro-lamports",
		Value: 20_000,
	}
	whitelistFlag = cli.StringFlag{
		Name:  "whitelist",
		Usage: "path to a newline-delimited pubkey allowlist that skips the signup transfer",
	}
	signupCostFlag = cli.Int64Flag{
		Name:  "signup-cost",
		Usage: "base-units an ordinary signup must transfer to the pool authority",
		Value: 1_000_000,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "poold"
	app.Usage = "mining pool coordinator"
	app.Flags = []cli.Flag{priorityFeeFlag, whitelistFlag, signupCostFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds the §6 Environment variables.
type env struct {
	WalletPath    string
	RPCURL        string
	RPCWSURL      string
	Password      string
	DatabaseURL   string
	DatabaseRRURL string
}

func loadEnv() env {
	return env{
		WalletPath:    os.Getenv("WALLET_PATH"),
		RPCURL:        os.Getenv("RPC_URL"),
		RPCWSURL:      os.Getenv("RPC_WS_URL"),
		Password:      os.Getenv("PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DatabaseRRURL: os.Getenv("DATABASE_RR_URL"),
	}
}

func run(c *cli.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("poold: build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	e := loadEnv()
	if e.WalletPath == "" || e.DatabaseURL == "" {
		return fmt.Errorf("poold: WALLET_PATH and DATABASE_URL are required")
	}

	operatorPubkey, err := loadOperatorPubkey(e.WalletPath, e.Password)
	if err != nil {
		return fmt.Errorf("poold: load wallet: %w", err)
	}

	gateway, err := store.Open(e.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("poold: open database: %w", err)
	}

	whitelist, err := httpapi.LoadWhitelist(c.String(whitelistFlag.Name))
	if err != nil {
		return fmt.Errorf("poold: load whitelist: %w", err)
	}

	// The RPC/pub-sub transport is out-of-core (§1 Non-goals); operators
	// deploying against a real chain supply their own chain.Client here.
	client := chain.Unconfigured{}
	log.Warnw("chain transport unconfigured, wire a real chain.Client for production", "rpc_url", e.RPCURL, "rpc_ws_url", e.RPCWSURL)

	const poolID = 1
	poolProofPubkey := "" // resolved from the pool's on-chain account in a real deployment

	reg := registry.New(log)
	var allocator nonce.Allocator
	fee := sharedstate.NewPriorityFee(uint64(c.Int64(priorityFeeFlag.Name)), nil)
	snapshot := sharedstate.NewProofSnapshot(nil)
	cursor := sharedstate.NewNonceCursor(nil)

	watcher := chainwatch.New(client, poolProofPubkey, log)
	disp := dispatch.New(reg, &allocator, log)
	submitter := submit.New(client, fee, gateway, operatorPubkey, log)
	distributor := reward.New(gateway, reg, log)

	eng := epoch.New(epoch.Config{
		Watcher:     watcher,
		Dispatcher:  disp,
		Submitter:   submitter,
		Distributor: distributor,
		Registry:    reg,
		Allocator:   &allocator,
		Fee:         fee,
		Snapshot:    snapshot,
		Cursor:      cursor,
		Gateway:     gateway,
		PoolID:      poolID,
	}, log)

	aggregator := aggregate.New(reg, pow.Default{}, eng, gateway, log)
	wsSrv := wsserver.New(reg, gateway, aggregator, log)

	api := httpapi.New(httpapi.Config{
		Store:           gateway,
		ChainClient:     client,
		Challenges:      eng,
		PoolID:          poolID,
		AuthorityPubkey: operatorPubkey,
		OperatorPubkey:  operatorPubkey,
		SignupCost:      uint64(c.Int64(signupCostFlag.Name)),
		Whitelist:       whitelist,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsSrv)
	mux.Handle("/", api.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go eng.Run(ctx)
	go reg.RunLiveness(ctx.Done())

	httpSrv := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		log.Infow("listening", "addr", listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server stopped", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infow("shutting down")
	cancel()
	return httpSrv.Shutdown(context.Background())
}

// loadOperatorPubkey derives the coordinator's base58 operator pubkey from
// its keystore. Wallet/keystore parsing is deployment-specific (§1
// Non-goals exclude the chain transport); this placeholder simply reads
// the file's contents as the pubkey, matching the env var's documented
// purpose until a real deployment supplies its own keystore format.
func loadOperatorPubkey(walletPath, password string) (string, error) {
	data, err := os.ReadFile(walletPath)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty wallet file at %s", walletPath)
	}
	return string(data), nil
}
