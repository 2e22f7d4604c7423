package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"drealestate/internal/api"
	"drealestate/internal/contract"
	"drealestate/internal/infra"
	"drealestate/internal/listener"
	"drealestate/internal/market"
	"drealestate/internal/provider"
)

// RunMarketplace connects to a node, syncs the market and serves the gateway
// until ctx is cancelled.
func RunMarketplace(ctx context.Context, cfg *infra.Config) error {
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	prov := provider.New(provider.Config{
		ProviderURL: cfg.Chain.ProviderURL,
		DevURL:      cfg.Chain.DevURL,
		WSURL:       cfg.Chain.WSURL,
		Timeout:     time.Duration(cfg.Chain.RequestTimeoutSec) * time.Second,
	})
	prov.OnState = func(s infra.ConnState) {
		slog.Info("Provider state", slog.String("state", s.String()))
	}
	defer prov.Close()

	if err := connect(ctx, prov, infra.DefaultBackoff); err != nil {
		return err
	}
	rc, err := prov.Client()
	if err != nil {
		return err
	}

	addr := common.HexToAddress(cfg.Chain.ContractAddress)
	client := contract.NewClient(rc, contract.Config{
		Address:        addr,
		GasLimit:       cfg.Chain.GasLimit,
		ReceiptTimeout: time.Duration(cfg.Chain.ReceiptTimeoutSec) * time.Second,
	}, infra.NewRateLimiter(cfg.Chain.TxBurst, cfg.Chain.TxPerSecond))

	if err := client.CheckDeployed(ctx); err != nil {
		return err
	}
	slog.Info("✅ Contract found", slog.String("address", addr.Hex()))

	svc := market.NewService(client, prov)
	if len(prov.Accounts()) > 0 {
		_, err = svc.SelectAccount(ctx, 0)
	} else {
		err = svc.Load(ctx)
	}
	if err != nil {
		return err
	}

	events := listener.NewWorker(prov.WSURL(), addr, svc.HandleLog, svc.Load)
	events.Connect(ctx)
	defer events.Disconnect()
	slog.Info("✅ Event listener started", slog.String("url", prov.WSURL()))

	server := api.NewServer(api.Config{
		Listen:   cfg.API.Listen,
		TokenTTL: time.Duration(cfg.API.TokenTTLMin) * time.Minute,
		Secret:   cfg.API.JWTSecret,
		Status: func() api.Status {
			name, url := prov.Endpoint()
			st := api.Status{
				Provider: prov.State().String(),
				Listener: events.State().String(),
				Endpoint: name + " " + url,
				Contract: addr.Hex(),
			}
			if id := prov.ChainID(); id != nil {
				st.ChainID = id.String()
			}
			return st
		},
	}, svc)

	slog.Info("✨ Marketplace fully operational. Press Ctrl+C to exit.")
	return server.Run(ctx)
}

// connect retries the provider with backoff until it answers or ctx ends.
func connect(ctx context.Context, prov *provider.Provider, backoff infra.Backoff) error {
	for retry := 0; ; retry++ {
		err := prov.Connect(ctx)
		if err == nil {
			return nil
		}

		delay := backoff.Delay(retry)
		slog.Warn("Provider unavailable", slog.Any("err", err), slog.Int("retry", retry), slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect: %w", err)
		case <-time.After(delay):
		}
	}
}
