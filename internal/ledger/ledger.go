// Package ledger keeps a bookkeeping record of every dispatched conversion.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jimbolo/convtrack/pkg/models"
)

// Ledger stores conversion records. Implementations assign the record ID and
// RecordedAt when they are zero.
type Ledger interface {
	Append(ctx context.Context, rec models.ConversionRecord) (models.ConversionRecord, error)
	List(ctx context.Context) ([]models.ConversionRecord, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open returns a SQLite ledger when path is set, otherwise an in-memory one.
func Open(cfg models.LedgerConfig) (Ledger, error) {
	if cfg.Path == "" {
		return NewMemory(cfg.NodeID)
	}
	return NewSQLite(cfg.Path, cfg.NodeID)
}

// idGenerator stamps records with time-ordered snowflake ids.
type idGenerator struct {
	node *snowflake.Node
}

func newIDGenerator(nodeID int64) (idGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return idGenerator{}, fmt.Errorf("invalid ledger node id %d: %w", nodeID, err)
	}
	return idGenerator{node: node}, nil
}

func (g idGenerator) stamp(rec models.ConversionRecord) models.ConversionRecord {
	if rec.ID == 0 {
		rec.ID = g.node.Generate().Int64()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	return rec
}

// Memory is a Ledger held in process memory.
type Memory struct {
	ids     idGenerator
	mu      sync.RWMutex
	records []models.ConversionRecord
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(nodeID int64) (*Memory, error) {
	ids, err := newIDGenerator(nodeID)
	if err != nil {
		return nil, err
	}
	return &Memory{ids: ids}, nil
}

func (m *Memory) Append(_ context.Context, rec models.ConversionRecord) (models.ConversionRecord, error) {
	rec = m.ids.stamp(rec)
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return rec, nil
}

func (m *Memory) List(_ context.Context) ([]models.ConversionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ConversionRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Close() error { return nil }
