package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresuchdata/po-tool/internal/domain"
)

// MemoryStore keeps sheets in memory. It backs tests and local runs without Google credentials.
type MemoryStore struct {
	mu     sync.Mutex
	sheets map[Ref]*memorySheet
}

type memorySheet struct {
	headers []string
	rows    [][]string
	writes  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[Ref]*memorySheet)}
}

// Put replaces a sheet with the given header row and data rows.
func (m *MemoryStore) Put(ref Ref, headers []string, rows []domain.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[ref] = &memorySheet{
		headers: append([]string(nil), headers...),
		rows:    rowValues(headers, rows),
	}
}

// Rows returns the current data rows of a sheet keyed by header.
func (m *MemoryStore) Rows(ref Ref) []domain.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[ref]
	if !ok {
		return nil
	}
	out := make([]domain.Row, len(s.rows))
	for i, values := range s.rows {
		row := make(domain.Row, len(s.headers))
		for j, h := range s.headers {
			row[h] = values[j]
		}
		out[i] = row
	}
	return out
}

// Writes counts WriteRows calls against ref.
func (m *MemoryStore) Writes(ref Ref) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sheets[ref]; ok {
		return s.writes
	}
	return 0
}

func (m *MemoryStore) ReadRows(ctx context.Context, ref Ref, required []string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[ref]
	if !ok {
		return nil, &MissingHeadersError{Ref: ref, Missing: required}
	}
	raw := make([][]string, len(s.rows))
	for i, r := range s.rows {
		raw[i] = append([]string(nil), r...)
	}
	return buildTable(ref, append([]string(nil), s.headers...), raw, required)
}

func (m *MemoryStore) WriteRows(ctx context.Context, ref Ref, rows []domain.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[ref]
	if !ok {
		return fmt.Errorf("sheet %s not found", ref)
	}
	s.rows = rowValues(s.headers, rows)
	s.writes++
	return nil
}

func (m *MemoryStore) DeleteRowRange(ctx context.Context, ref Ref, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[ref]
	if !ok {
		return fmt.Errorf("sheet %s not found", ref)
	}
	// Index 0 is the header row.
	lo, hi := start-1, end-1
	if lo < 0 || hi > len(s.rows) || lo > hi {
		return fmt.Errorf("row range [%d, %d) out of bounds for %s", start, end, ref)
	}
	s.rows = append(s.rows[:lo], s.rows[hi:]...)
	return nil
}
