package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(eventID string) models.ConversionRecord {
	return models.ConversionRecord{
		EventID: eventID,
		Source:  models.SourceNetwork,
		Payload: models.ConversionPayload{
			SendTo:        "AW-1/label",
			Value:         49.99,
			Currency:      "USD",
			TransactionID: "ORD1",
		},
		ConfidenceScore: 1,
		RecordedAt:      time.UnixMilli(1_700_000_000_000),
	}
}

func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()
	mem, err := NewMemory(1)
	require.NoError(t, err)
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Ledger{"memory": mem, "sqlite": sq}
}

func TestLedger_AppendAndList(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := l.Append(ctx, sampleRecord("evt-1"))
			require.NoError(t, err)
			second, err := l.Append(ctx, sampleRecord("evt-2"))
			require.NoError(t, err)

			assert.NotZero(t, first.ID)
			assert.Greater(t, second.ID, first.ID, "snowflake ids are time ordered")

			got, err := l.List(ctx)
			require.NoError(t, err)
			want := []models.ConversionRecord{first, second}
			if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}

			n, err := l.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestLedger_StampsRecordedAt(t *testing.T) {
	mem, err := NewMemory(0)
	require.NoError(t, err)
	rec := sampleRecord("evt")
	rec.RecordedAt = time.Time{}
	got, err := mem.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got.RecordedAt, time.Second)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l, err := NewSQLite(path, 3)
	require.NoError(t, err)
	rec, err := l.Append(ctx, sampleRecord("evt-persist"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := NewSQLite(path, 3)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "ORD1", got[0].Payload.TransactionID)
}

func TestOpen(t *testing.T) {
	l, err := Open(models.LedgerConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, l)

	l, err = Open(models.LedgerConfig{Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	defer l.Close()
	assert.IsType(t, &SQLite{}, l)

	_, err = Open(models.LedgerConfig{NodeID: 5000})
	assert.ErrorContains(t, err, "invalid ledger node id")
}
