package indexer

import (
	"sort"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedPoolRegistry defines the methods for accessing indexed pool registry data.
type IndexedPoolRegistry interface {
	GetByID(id common.Hash) (poolregistry.Pool, bool)
	ProtocolOf(id common.Hash) (engine.ProtocolID, bool)
	All() []poolregistry.Pool
	GetProtocols() map[uint16]engine.ProtocolID
}

type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool registry from the full registry view.
func (i *Indexer) Index(view poolregistry.PoolRegistry) IndexedPoolRegistry {
	return NewIndexablePoolRegistry(view)
}

// IndexablePoolRegistry provides fast, indexed access to pool registry data.
type IndexablePoolRegistry struct {
	byID      map[common.Hash]poolregistry.Pool
	all       []poolregistry.Pool
	protocols map[uint16]engine.ProtocolID
}

func NewIndexablePoolRegistry(view poolregistry.PoolRegistry) *IndexablePoolRegistry {
	byID := make(map[common.Hash]poolregistry.Pool, len(view.Pools))
	for _, p := range view.Pools {
		byID[p.ID] = p
	}

	protocols := make(map[uint16]engine.ProtocolID, len(view.Protocols))
	for k, v := range view.Protocols {
		protocols[k] = v
	}

	all := make([]poolregistry.Pool, len(view.Pools))
	copy(all, view.Pools)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Protocol < all[j].Protocol })

	return &IndexablePoolRegistry{
		byID:      byID,
		all:       all,
		protocols: protocols,
	}
}

// GetByID retrieves a pool by its object id.
func (ipr *IndexablePoolRegistry) GetByID(id common.Hash) (poolregistry.Pool, bool) {
	p, ok := ipr.byID[id]
	return p, ok
}

// ProtocolOf returns the protocol publishing the pool.
func (ipr *IndexablePoolRegistry) ProtocolOf(id common.Hash) (engine.ProtocolID, bool) {
	p, ok := ipr.byID[id]
	if !ok {
		return "", false
	}
	protocol, ok := ipr.protocols[p.Protocol]
	return protocol, ok
}

// All returns a copy of every pool, grouped by protocol.
func (ipr *IndexablePoolRegistry) All() []poolregistry.Pool {
	allCopy := make([]poolregistry.Pool, len(ipr.all))
	copy(allCopy, ipr.all)
	return allCopy
}

// GetProtocols returns a copy of the protocol mapping.
func (ipr *IndexablePoolRegistry) GetProtocols() map[uint16]engine.ProtocolID {
	copyMap := make(map[uint16]engine.ProtocolID, len(ipr.protocols))
	for k, v := range ipr.protocols {
		copyMap[k] = v
	}
	return copyMap
}
