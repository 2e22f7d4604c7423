package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"drealestate/internal/domain"
	"drealestate/internal/infra"
)

// Config lists the endpoints in fallback order.
type Config struct {
	ProviderURL string // injected provider, may be empty
	DevURL      string // local development chain
	WSURL       string // event endpoint override
	Timeout     time.Duration

	// Dialer replaces rpc.DialOptions, for tests.
	Dialer func(ctx context.Context, url string) (*rpc.Client, error)
}

type endpoint struct {
	name    string
	url     string
	breaker *breaker
}

// Provider is the wallet/provider bridge: it finds a reachable node,
// exposes its unlocked accounts and tracks the connection state.
type Provider struct {
	cfg       Config
	endpoints []*endpoint

	mu       sync.RWMutex
	state    infra.ConnState
	active   *endpoint
	client   *rpc.Client
	accounts []common.Address
	chainID  *big.Int

	// OnState observes connection transitions. Set before Connect.
	OnState func(infra.ConnState)
}

// New creates a disconnected provider.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = httpDialer(cfg.Timeout)
	}

	p := &Provider{cfg: cfg}
	if cfg.ProviderURL != "" {
		p.endpoints = append(p.endpoints, &endpoint{name: "injected", url: cfg.ProviderURL, breaker: newBreaker(cfg.ProviderURL, 3, 30*time.Second)})
	}
	if cfg.DevURL != "" {
		p.endpoints = append(p.endpoints, &endpoint{name: "devchain", url: cfg.DevURL, breaker: newBreaker(cfg.DevURL, 3, 30*time.Second)})
	}
	return p
}

func httpDialer(timeout time.Duration) func(context.Context, string) (*rpc.Client, error) {
	return func(ctx context.Context, url string) (*rpc.Client, error) {
		return rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
}

// Connect tries each endpoint in order and keeps the first one that answers
// eth_chainId and eth_accounts. It fails with ErrNoProvider when none does.
func (p *Provider) Connect(ctx context.Context) error {
	p.setState(infra.ConnConnecting)

	var errs []error
	for _, ep := range p.endpoints {
		if !ep.breaker.allow() {
			errs = append(errs, fmt.Errorf("%s: circuit open", ep.name))
			continue
		}

		client, chainID, accounts, err := p.probe(ctx, ep)
		if err != nil {
			ep.breaker.failure()
			slog.Warn("Provider endpoint unavailable", slog.String("endpoint", ep.name), slog.String("url", ep.url), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", ep.name, err))
			continue
		}
		ep.breaker.success()

		p.mu.Lock()
		old := p.client
		p.client = client
		p.active = ep
		p.chainID = chainID
		p.accounts = accounts
		p.mu.Unlock()
		if old != nil {
			old.Close()
		}

		p.setState(infra.ConnConnected)
		slog.Info("✅ Provider connected",
			slog.String("endpoint", ep.name),
			slog.String("url", ep.url),
			slog.String("chain_id", chainID.String()),
			slog.Int("accounts", len(accounts)))
		return nil
	}

	p.setState(infra.ConnDisconnected)
	if len(errs) == 0 {
		errs = append(errs, errors.New("no endpoints configured"))
	}
	return fmt.Errorf("%w: %w", domain.ErrNoProvider, errors.Join(errs...))
}

func (p *Provider) probe(ctx context.Context, ep *endpoint) (*rpc.Client, *big.Int, []common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	client, err := p.cfg.Dialer(ctx, ep.url)
	if err != nil {
		return nil, nil, nil, err
	}

	var chainID hexutil.Big
	if err := client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("eth_chainId: %w", err)
	}

	var accounts []common.Address
	if err := client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return client, chainID.ToInt(), accounts, nil
}

// Client returns the active RPC client.
func (p *Provider) Client() (*rpc.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.client == nil {
		return nil, domain.ErrNoProvider
	}
	return p.client, nil
}

// Accounts returns the accounts reported at connect time.
func (p *Provider) Accounts() []common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]common.Address, len(p.accounts))
	copy(out, p.accounts)
	return out
}

// Account returns the account at index, the way a wallet's account picker does.
func (p *Provider) Account(index int) (common.Address, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.accounts) {
		return common.Address{}, fmt.Errorf("%w: index %d of %d", domain.ErrNoAccount, index, len(p.accounts))
	}
	return p.accounts[index], nil
}

// ChainID returns the connected chain id, nil when disconnected.
func (p *Provider) ChainID() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.chainID == nil {
		return nil
	}
	return new(big.Int).Set(p.chainID)
}

// Endpoint returns the name and URL of the active endpoint.
func (p *Provider) Endpoint() (string, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.active == nil {
		return "", ""
	}
	return p.active.name, p.active.url
}

// WSURL returns the websocket endpoint for event subscriptions: the
// configured override, else the active endpoint with its scheme swapped.
func (p *Provider) WSURL() string {
	if p.cfg.WSURL != "" {
		return p.cfg.WSURL
	}
	_, url := p.Endpoint()
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}

// State returns the connection state.
func (p *Provider) State() infra.ConnState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Provider) setState(s infra.ConnState) {
	p.mu.Lock()
	changed := p.state != s
	p.state = s
	p.mu.Unlock()

	if changed && p.OnState != nil {
		p.OnState(s)
	}
}

// Close drops the active connection.
func (p *Provider) Close() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.active = nil
	p.mu.Unlock()

	if client != nil {
		client.Close()
	}
	p.setState(infra.ConnDisconnected)
}
