package kraken

import "strings"

// Kraken's legacy asset codes mapped to the common tickers.
var assetAliases = map[string]string{
	"XBT":  "BTC",
	"XXBT": "BTC",
	"XDG":  "DOGE",
	"XXDG": "DOGE",
	"XETH": "ETH",
	"XLTC": "LTC",
	"XXRP": "XRP",
	"XXLM": "XLM",
	"XETC": "ETC",
	"XXMR": "XMR",
	"XZEC": "ZEC",
	"ZUSD": "USD",
	"ZEUR": "EUR",
	"ZGBP": "GBP",
	"ZCAD": "CAD",
	"ZJPY": "JPY",
	"ZAUD": "AUD",
	"ZCHF": "CHF",
}

var knownQuotes = []string{"USDT", "USDC", "ZUSD", "ZEUR", "USD", "EUR", "GBP", "CAD", "JPY", "XBT", "BTC", "ETH"}

// CanonicalAsset maps a Kraken asset code to its common ticker.
func CanonicalAsset(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if a, ok := assetAliases[code]; ok {
		return a
	}
	return code
}

// NormalizeSymbol returns "BASE/QUOTE" with common tickers. It accepts
// "xbt-usd", "XBT/USD", "BTC_USD" and slash-less forms such as "XBTUSD".
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "/", "_", "/").Replace(s)
	if i := strings.IndexByte(s, '/'); i > 0 {
		return CanonicalAsset(s[:i]) + "/" + CanonicalAsset(s[i+1:])
	}
	for _, q := range knownQuotes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return CanonicalAsset(s[:len(s)-len(q)]) + "/" + CanonicalAsset(q)
		}
	}
	return s
}

func (c *Client) NormalizeSymbol(symbol string) string {
	c.mu.RLock()
	canon, ok := c.byID[strings.ToUpper(symbol)]
	c.mu.RUnlock()
	if ok {
		return canon
	}
	return NormalizeSymbol(symbol)
}
