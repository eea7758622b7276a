package assetregistry

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidAssetID = errors.New("invalid asset id")

// AssetID is the fully-qualified coin type of a fungible asset, e.g.
// "0x2::sui::SUI". IDs compare byte-wise.
type AssetID string

// Less orders asset ids byte-wise.
func (id AssetID) Less(other AssetID) bool {
	return id < other
}

// Validate checks that the id has the address::module::name shape.
func (id AssetID) Validate() error {
	parts := strings.Split(string(id), "::")
	if len(parts) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidAssetID, string(id))
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: %q", ErrInvalidAssetID, string(id))
		}
	}
	if !strings.HasPrefix(parts[0], "0x") {
		return fmt.Errorf("%w: %q has no address", ErrInvalidAssetID, string(id))
	}
	return nil
}

// Asset is the static description of a fungible asset.
type Asset struct {
	ID       AssetID `json:"id"`
	Symbol   string  `json:"symbol"`
	Decimals uint8   `json:"decimals"`
}
