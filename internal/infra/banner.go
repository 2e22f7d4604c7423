package infra

import (
	"fmt"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner for role ("marketplace" or "devchain").
// A marketplace pointed at an injected provider is highlighted in red:
// transactions there may spend real ether.
func PrintBanner(cfg *Config, role string) {
	fmt.Print(Banner(cfg, role))
}

// Banner renders the startup banner.
func Banner(cfg *Config, role string) string {
	color := ColorGreen
	network := "LOCAL DEV CHAIN"
	endpoint := cfg.Chain.DevURL

	switch {
	case role == "devchain":
		color = ColorCyan
		network = fmt.Sprintf("DEV NODE (chain %d)", cfg.DevChain.ChainID)
		endpoint = cfg.DevChain.Listen
	case cfg.Chain.ProviderURL != "":
		color = ColorYellow
		network = "INJECTED PROVIDER"
		endpoint = cfg.Chain.ProviderURL
	}

	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, "%s"+format+"%s\n", append(append([]interface{}{color}, args...), ColorReset)...)
	}

	b.WriteString("\n")
	line("###########################################################")
	line("#                                                         #")
	line("#            🏠 DRealEstate Marketplace                   #")
	line("#                                                         #")
	line("#   ROLE:     %-35s #", strings.ToUpper(role))
	line("#   NETWORK:  %-35s #", network)
	line("#   ENDPOINT: %-35s #", endpoint)
	line("#   VERSION:  %-35s #", cfg.App.Version)
	line("#                                                         #")
	if role != "devchain" && cfg.Chain.ProviderURL != "" {
		fmt.Fprintf(&b, "%s#   ⚠️  TRANSACTIONS MAY SPEND REAL ETHER                  #%s\n", ColorRed, ColorReset)
	}
	line("###########################################################")
	b.WriteString("\n")
	return b.String()
}
