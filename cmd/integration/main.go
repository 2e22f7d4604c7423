// Command integration runs a list/buy/toggle/price scenario against a running
// node, using the accounts it exposes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"drealestate/internal/contract"
	"drealestate/internal/domain"
	"drealestate/internal/infra"
	"drealestate/internal/provider"
	"drealestate/pkg/quant"
)

func main() {
	// 1. Setup Logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	slog.Info("🚀 Starting marketplace integration run...")

	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		slog.Error("❌ Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("❌ Integration run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("🎉 Integration run passed")
}

func run(ctx context.Context, cfg *infra.Config) error {
	// 2. Connect
	prov := provider.New(provider.Config{
		ProviderURL: cfg.Chain.ProviderURL,
		DevURL:      cfg.Chain.DevURL,
		Timeout:     time.Duration(cfg.Chain.RequestTimeoutSec) * time.Second,
	})
	if err := prov.Connect(ctx); err != nil {
		return err
	}
	defer prov.Close()

	accounts := prov.Accounts()
	if len(accounts) < 3 {
		return fmt.Errorf("need 3 unlocked accounts, node has %d", len(accounts))
	}
	seller, buyer, other := accounts[0], accounts[1], accounts[2]

	rc, err := prov.Client()
	if err != nil {
		return err
	}
	client := contract.NewClient(rc, contract.Config{
		Address:  common.HexToAddress(cfg.Chain.ContractAddress),
		GasLimit: cfg.Chain.GasLimit,
	}, nil)
	if err := client.CheckDeployed(ctx); err != nil {
		return err
	}

	// 3. List
	before, err := client.GetPropertyCount(ctx)
	if err != nil {
		return err
	}
	id, err := client.ListProperty(ctx, seller, domain.ListingForm{
		Name: "Integration House", Location: "Testville", Description: "Created by the integration run",
		Price: "1.5", Size: "1200", Bedrooms: "3", Bathrooms: "2",
	})
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	after, err := client.GetPropertyCount(ctx)
	if err != nil {
		return err
	}
	if after != before+1 {
		return fmt.Errorf("property count %d -> %d", before, after)
	}
	slog.Info("✅ Listed", "id", id)

	// 4. Underpay, then buy
	if _, err := client.BuyProperty(ctx, buyer, id, quant.MustWei("1")); !isRevert(err, "Not enough ETH sent") {
		return fmt.Errorf("underpaid buy: expected revert, got %v", err)
	}
	if _, err := client.BuyProperty(ctx, buyer, id, quant.MustWei("1.5")); err != nil {
		return fmt.Errorf("buy: %w", err)
	}
	p, err := client.GetProperty(ctx, id)
	if err != nil {
		return err
	}
	if p.Owner != buyer || p.IsForSale {
		return fmt.Errorf("after buy: owner %s forSale %v", p.Owner.Hex(), p.IsForSale)
	}
	slog.Info("✅ Bought", "id", id, "owner", buyer.Hex())

	// 5. Owner-only actions
	if _, err := client.ToggleForSale(ctx, other, id); !isRevert(err, "Only owner can toggle sale status") {
		return fmt.Errorf("foreign toggle: expected revert, got %v", err)
	}
	if _, err := client.ToggleForSale(ctx, buyer, id); err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	if _, err := client.UpdatePropertyPrice(ctx, buyer, id, quant.MustWei("2")); err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	p, err = client.GetProperty(ctx, id)
	if err != nil {
		return err
	}
	if !p.IsForSale || quant.FromWei(p.Price) != "2" {
		return fmt.Errorf("after relist: forSale %v price %s", p.IsForSale, quant.FromWei(p.Price))
	}
	slog.Info("✅ Relisted", "id", id, "price", quant.FromWei(p.Price))
	return nil
}

func isRevert(err error, reason string) bool {
	var r *domain.RevertError
	return errors.As(err, &r) && r.Reason == reason
}
