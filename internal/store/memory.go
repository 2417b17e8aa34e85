package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/angeloszaimis/payment-router/internal/payment"
)

// Memory is an in-process Gateway. Records live until PurgeAll or exit.
type Memory struct {
	mutex   sync.RWMutex
	records map[string]payment.ProcessedRecord
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]payment.ProcessedRecord),
	}
}

func (m *Memory) Exists(_ context.Context, correlationID string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.records[correlationID]
	return ok, nil
}

func (m *Memory) Save(_ context.Context, rec payment.ProcessedRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.records[rec.CorrelationID]; ok {
		return ErrConflict
	}
	rec.ProcessedAt = rec.ProcessedAt.Truncate(Precision)
	m.records[rec.CorrelationID] = rec
	return nil
}

func (m *Memory) CountAndSum(_ context.Context, tag payment.Tag, r payment.Range) (int64, decimal.Decimal, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if r.From != nil {
		from := lowerBound(*r.From)
		r.From = &from
	}

	var count int64
	sum := decimal.Zero
	for _, rec := range m.records {
		if rec.Processor != tag || !r.Contains(rec.ProcessedAt) {
			continue
		}
		count++
		sum = sum.Add(rec.Amount)
	}
	return count, sum, nil
}

func (m *Memory) PurgeAll(context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	clear(m.records)
	return nil
}

func (m *Memory) Close() {}
