package pricing

import (
	"strings"
	"unicode"
)

// On-chain asset ids of the tokens the lending pool accepts
var assetSymbols = map[string]string{
	"0xf8f8b6283d7fa5b672b530cbb84fcccb4ff8dc40f8176ef4544ddb1f1952ad07": "ETH",

	"0x286c479da40dc953bddc3bb4c453b608bba2e0ac483b077bd475174115395e6b": "USDC",
	"0xd02112ef9c39f1cea7c8527c26242ca1f5d26bcfe8d1564bee054d3b04175471": "USDC",
	"0xc26c91055de37528492e7e97d91c6f4abe34aae26f2c4d25cff6bfe45b5dc9a9": "USDC",

	"0x1d5d97005e41cae2187a895fd8eab0506111e0e2f3331cd3912c15c24e3c1d82": "FUEL",
}

// NormalizeAsset maps an asset identifier to its ticker symbol.
// Known asset ids match case-insensitively. Anything else is passed through:
// short alphanumeric tickers are upper-cased, other identifiers are returned
// as given so providers look them up literally.
func NormalizeAsset(assetID string) (symbol string, known bool) {
	id := strings.TrimSpace(assetID)
	if s, ok := assetSymbols[strings.ToLower(id)]; ok {
		return s, true
	}
	if isTicker(id) {
		return strings.ToUpper(id), false
	}
	return id, false
}

func isTicker(s string) bool {
	if s == "" || len(s) > 10 || strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
