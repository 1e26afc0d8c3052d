// Package store provides in-memory implementations of the escalation
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/rent-engine/escalation"
)

// =============================================================================
// MEMORY STORE - In-memory Store + ContractStore (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	records   map[escalation.ContractID][]escalation.EscalationRecord
	periods   map[periodKey]bool
	contracts map[escalation.ContractID]escalation.Contract
}

type periodKey struct {
	ContractID    escalation.ContractID
	EffectiveDate string // day precision, the uniqueness grain
}

func NewMemory() *Memory {
	return &Memory{
		records:   make(map[escalation.ContractID][]escalation.EscalationRecord),
		periods:   make(map[periodKey]bool),
		contracts: make(map[escalation.ContractID]escalation.Contract),
	}
}

func keyFor(rec escalation.EscalationRecord) periodKey {
	return periodKey{
		ContractID:    rec.ContractID,
		EffectiveDate: rec.EffectiveDate.UTC().Format("2006-01-02"),
	}
}

// InsertIfAbsent adds rec unless its (contract, effective date) already
// exists. The check and the insert share one lock, so concurrent writers
// cannot both succeed for the same period.
func (m *Memory) InsertIfAbsent(_ context.Context, rec escalation.EscalationRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := keyFor(rec)
	if m.periods[k] {
		return false, nil
	}

	recs := m.records[rec.ContractID]

	// Binary search keeps the slice sorted by EffectiveDate on insert.
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].EffectiveDate.After(rec.EffectiveDate)
	})
	recs = append(recs, escalation.EscalationRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec

	m.records[rec.ContractID] = recs
	m.periods[k] = true
	return true, nil
}

func (m *Memory) Latest(_ context.Context, contractID escalation.ContractID) (*escalation.EscalationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records[contractID]
	if len(recs) == 0 {
		return nil, nil
	}
	last := recs[len(recs)-1]
	return &last, nil
}

func (m *Memory) History(_ context.Context, contractID escalation.ContractID) ([]escalation.EscalationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]escalation.EscalationRecord, len(m.records[contractID]))
	copy(result, m.records[contractID])
	return result, nil
}

// =============================================================================
// CONTRACT STORE
// =============================================================================

// PutContract saves or replaces a contract. Test/dev seeding helper;
// in production contracts are owned by the lease-management service.
func (m *Memory) PutContract(c escalation.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
}

func (m *Memory) ListActive(_ context.Context, now time.Time) ([]escalation.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []escalation.Contract
	for _, c := range m.contracts {
		if c.Eligible(now) {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *Memory) Get(_ context.Context, id escalation.ContractID) (escalation.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return escalation.Contract{}, escalation.ErrContractNotFound
	}
	return c, nil
}

// =============================================================================
// FAILING STORE - Wrapper injecting transient errors (tests)
// =============================================================================

// Flaky wraps a Memory store and fails the first FailTimes calls to each
// operation, simulating transient store errors for retry tests.
type Flaky struct {
	*Memory
	FailTimes int
	Err       error

	mu       sync.Mutex
	failures map[string]int
}

func NewFlaky(inner *Memory, failTimes int, err error) *Flaky {
	return &Flaky{Memory: inner, FailTimes: failTimes, Err: err, failures: make(map[string]int)}
}

func (f *Flaky) shouldFail(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[op] < f.FailTimes {
		f.failures[op]++
		return true
	}
	return false
}

func (f *Flaky) InsertIfAbsent(ctx context.Context, rec escalation.EscalationRecord) (bool, error) {
	if f.shouldFail("insert:" + string(rec.ContractID)) {
		return false, f.Err
	}
	return f.Memory.InsertIfAbsent(ctx, rec)
}

func (f *Flaky) Latest(ctx context.Context, contractID escalation.ContractID) (*escalation.EscalationRecord, error) {
	if f.shouldFail("latest:" + string(contractID)) {
		return nil, f.Err
	}
	return f.Memory.Latest(ctx, contractID)
}
