// Package address validates and normalizes token addresses coming from scan
// feeds.
package address

import (
	"errors"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/tonkeeper/tongo/ton"
)

// Chain is the network a token address belongs to.
type Chain string

const (
	ChainSolana Chain = "solana"
	ChainEVM    Chain = "evm"
	ChainTON    Chain = "ton"
)

var ErrMalformed = errors.New("malformed token address")

var (
	evmRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	tonRegex = regexp.MustCompile(`^(-?\d+:[0-9a-fA-F]{64}|[UEk0][Qf][0-9A-Za-z_-]{46})$`)
)

// Normalize returns the canonical form of addr and its chain.
// Solana mints are kept verbatim (base58 is case sensitive), EVM addresses
// are lower-cased and TON addresses are converted to raw form.
func Normalize(addr string) (string, Chain, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", "", ErrMalformed
	}

	switch {
	case evmRegex.MatchString(addr):
		return strings.ToLower(addr), ChainEVM, nil
	case tonRegex.MatchString(addr):
		acc, err := ton.ParseAccountID(addr)
		if err != nil {
			return "", "", ErrMalformed
		}
		return acc.String(), ChainTON, nil
	}

	if len(addr) >= 32 && len(addr) <= 44 {
		raw, err := base58.Decode(addr)
		if err == nil && len(raw) == 32 {
			return addr, ChainSolana, nil
		}
	}

	return "", "", ErrMalformed
}

// ChainOf reports the chain of an already normalized address.
func ChainOf(addr string) Chain {
	switch {
	case strings.HasPrefix(addr, "0x"):
		return ChainEVM
	case strings.Contains(addr, ":"):
		return ChainTON
	default:
		return ChainSolana
	}
}

// Display returns the form shown to users. TON addresses are rendered
// user-friendly, everything else as stored.
func Display(addr string) string {
	if ChainOf(addr) != ChainTON {
		return addr
	}
	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return addr
	}
	return acc.ToHuman(true, false)
}

// Short returns a shortened address for display.
func Short(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
