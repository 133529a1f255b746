package domain

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// AssetID identifies an asset. Stellar assets use the canonical form: "native" for XLM,
// "CODE:ISSUER" for credits. Synthetic assets (fund shares, off-ledger symbols) may use
// any other non-empty string.
type AssetID string

// NativeAssetID is the Stellar native asset (XLM).
const NativeAssetID AssetID = "native"

// Asset is an identifier plus its decimal precision. Precision never changes once the
// asset has been registered.
type Asset struct {
	ID        AssetID `json:"id"`
	Precision uint8   `json:"precision"`
}

// Unit returns one whole unit of the asset in its smallest denomination (10^precision).
func (a Asset) Unit() sdkmath.Int {
	return Pow10(a.Precision)
}

// IsNative returns true if this asset is the native XLM.
func (id AssetID) IsNative() bool {
	return id == NativeAssetID
}

// Code returns the asset code portion of a canonical id, "XLM" for native.
func (id AssetID) Code() string {
	if id.IsNative() {
		return "XLM"
	}
	code, _, _ := strings.Cut(string(id), ":")
	return code
}

// Issuer returns the issuer portion of a canonical id, empty for native or synthetic ids.
func (id AssetID) Issuer() string {
	_, issuer, _ := strings.Cut(string(id), ":")
	return issuer
}

// NewAssetID builds a canonical id from a code and issuer.
func NewAssetID(code, issuer string) AssetID {
	if code == "XLM" || code == "native" {
		return NativeAssetID
	}
	if issuer == "" {
		return AssetID(code)
	}
	return AssetID(fmt.Sprintf("%s:%s", code, issuer))
}

// StellarPrecision is the fixed precision of every Stellar ledger asset.
const StellarPrecision uint8 = 7

// IssuerAddress is the Stellar address of the main fund issuer.
const IssuerAddress = "GACKTN5DAZGWXRWB2WLM6OPBDHAMT6SJNGLJZPQMEZBUR4JUGBX2UK7V"

// EURMTLAssetID is the default denomination asset (EUR-pegged stablecoin).
var EURMTLAssetID = NewAssetID("EURMTL", IssuerAddress)
