package batchmig

import (
	"context"
	"github.com/denismitr/batchmig/migration"
)

// Status describes one migration known to the source, the ledger or both
type Status struct {
	Key   string
	Ran   bool
	Batch migration.Batch
	// Missing is set for a recorded migration the source no longer lists
	Missing bool
}

// Status lists every migration in key order with what the ledger knows about it
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	if _, err := m.setUp(ctx); err != nil {
		return nil, err
	}

	all, err := m.source.ListAll(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	records, err := m.repo.Records(ctx)
	if err != nil {
		return nil, err
	}

	batches := make(map[string]migration.Batch, len(records))
	for _, r := range records {
		batches[r.Name] = r.Batch
	}

	listed := make(map[string]struct{}, len(all))
	keys := make([]string, 0, len(all)+len(records))
	for _, key := range all {
		listed[key] = struct{}{}
		keys = append(keys, key)
	}

	for _, r := range records {
		if _, ok := listed[r.Name]; !ok {
			keys = append(keys, r.Name)
		}
	}

	migration.SortKeys(keys)

	result := make([]Status, 0, len(keys))
	for _, key := range keys {
		batch, ran := batches[key]
		_, isListed := listed[key]

		result = append(result, Status{Key: key, Ran: ran, Batch: batch, Missing: !isListed})
	}

	return result, nil
}
