package poolregistry

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/clmm"
	"github.com/defistate/defistate-router-go/protocols/constantproduct"
	"github.com/defistate/defistate-router-go/protocols/stableswap"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDuplicatePool  = errors.New("pool published by more than one protocol")
	ErrUnexpectedData = errors.New("unexpected protocol data type")
)

// Pool records which protocol publishes a pool.
type Pool struct {
	ID       common.Hash `json:"id"`
	Protocol uint16      `json:"protocol"` // key into PoolRegistry.Protocols
}

// PoolRegistry maps every pool of a state to the protocol that publishes
// it. Protocol ids are stored once and referenced by a small integer.
type PoolRegistry struct {
	Pools     []Pool                       `json:"pools"`
	Protocols map[uint16]engine.ProtocolID `json:"protocols"`
}

func poolIDs(data any) ([]common.Hash, error) {
	var ids []common.Hash
	switch pools := data.(type) {
	case nil, []assetregistry.Asset:
	case []*clmm.Pool:
		for _, p := range pools {
			ids = append(ids, p.ID)
		}
	case []*stableswap.Pool:
		for _, p := range pools {
			ids = append(ids, p.ID)
		}
	case []*constantproduct.Pool:
		for _, p := range pools {
			ids = append(ids, p.ID)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedData, data)
	}
	return ids, nil
}

// FromState builds the registry of a state. Protocols are numbered in id
// order and pools are sorted by id.
func FromState(state *engine.State) (PoolRegistry, error) {
	protocolIDs := make([]engine.ProtocolID, 0, len(state.Protocols))
	for id := range state.Protocols {
		protocolIDs = append(protocolIDs, id)
	}
	sort.Slice(protocolIDs, func(i, j int) bool { return protocolIDs[i] < protocolIDs[j] })

	registry := PoolRegistry{Protocols: make(map[uint16]engine.ProtocolID)}
	owner := make(map[common.Hash]engine.ProtocolID)
	for _, protocolID := range protocolIDs {
		ids, err := poolIDs(state.Protocols[protocolID].Data)
		if err != nil {
			return PoolRegistry{}, fmt.Errorf("protocol %s: %w", protocolID, err)
		}
		if len(ids) == 0 {
			continue
		}
		if len(registry.Protocols) > int(^uint16(0)) {
			return PoolRegistry{}, fmt.Errorf("more than %d protocols", int(^uint16(0))+1)
		}

		key := uint16(len(registry.Protocols))
		registry.Protocols[key] = protocolID
		for _, id := range ids {
			if prev, dup := owner[id]; dup {
				return PoolRegistry{}, fmt.Errorf("%w: %s in %s and %s", ErrDuplicatePool, id.Hex(), prev, protocolID)
			}
			owner[id] = protocolID
			registry.Pools = append(registry.Pools, Pool{ID: id, Protocol: key})
		}
	}

	sort.Slice(registry.Pools, func(i, j int) bool {
		return bytes.Compare(registry.Pools[i].ID[:], registry.Pools[j].ID[:]) < 0
	})
	return registry, nil
}
