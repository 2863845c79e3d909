package analysis

// KnownAddresses holds the static reference tables the classifier and graph
// builder consult: labeled exchange deposit/hot wallets, cross-chain bridge
// programs, DeFi hub programs, and mixer keyword fragments. The tables are
// configuration, not code; Default returns the built-in snapshot and callers
// may construct their own for tests or updated labels.
type KnownAddresses struct {
	Exchanges     map[string]struct{}
	Bridges       map[string]struct{}
	DeFiProtocols map[string]struct{}
	MixerKeywords []string
}

// DefaultKnownAddresses returns the built-in labeled address tables.
func DefaultKnownAddresses() *KnownAddresses {
	return &KnownAddresses{
		Exchanges: toSet([]string{
			// Binance hot wallets
			"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
			"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9",
			// Coinbase
			"H8sMJSCQxfKiFTCfDR3DUMLPwcRbM61LGFJ8N4dK3WjS",
			"2AQdpHJ2JpcEgPiATUXjQxA8QmafFegfQwSLWSprPicm",
			// Kraken
			"FWznbcNXWQuHTawe9RxvQ2LdCENssh12dsznf4RiouN5",
			// OKX
			"5VCwKtCXgCJ6kit5FybXjvriW3xELsFDhYrPSqtJNmcD",
			// Bybit
			"AC5RDfQFmDS1deWZos921JfqscXdByf8BKHs5ACWjtW2",
		}),
		Bridges: toSet([]string{
			// Wormhole core and token bridge (Portal)
			"worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth",
			"wormDTUJ6AWPNvk59vGQbDvGJmqbDTdgWgAqcLBCgUb",
			"3u8hJUVTA4jH1wYAyUur7FFZVQ8H635K3tSHHF4ssjQ5",
			// Allbridge
			"BrdgN2RPzEMWF96ZbnnJaUtQDQx7VRXYaHHbYCBvceWB",
			// deBridge
			"DEbrdGj3HsRsAzx6uH4MKyREKxVAfBydijLUF3ygsFfh",
		}),
		DeFiProtocols: toSet([]string{
			// Jupiter aggregator
			"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
			// Raydium AMM
			"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
			// Orca Whirlpools
			"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
			// Pump.fun
			"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
		}),
		MixerKeywords: []string{"mixer", "tornado", "railgun", "elusiv", "inco"},
	}
}

// IsExchange reports whether the address is a labeled exchange wallet.
func (k *KnownAddresses) IsExchange(addr string) bool {
	_, ok := k.Exchanges[addr]
	return ok
}

// IsBridge reports whether the address or program is a labeled bridge.
func (k *KnownAddresses) IsBridge(addr string) bool {
	_, ok := k.Bridges[addr]
	return ok
}

// IsDeFiProtocol reports whether the address is a labeled DeFi hub program.
func (k *KnownAddresses) IsDeFiProtocol(addr string) bool {
	_, ok := k.DeFiProtocols[addr]
	return ok
}

func toSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}
