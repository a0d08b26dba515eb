package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

// fakeTx records statements executed inside a transaction.
type fakeTx struct {
	pgx.Tx
	pool       *fakePool
	calls      []execCall
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.calls = append(t.calls, execCall{sql: sql, args: args})
	switch {
	case strings.HasPrefix(sql, "UPDATE admin_auction_monitoring"):
		if t.pool.updateErr != nil {
			return pgconn.CommandTag{}, t.pool.updateErr
		}
		return pgconn.NewCommandTag("UPDATE " + t.pool.updateRows), nil
	case strings.HasPrefix(sql, "INSERT INTO admin_audit_log"):
		if t.pool.auditErr != nil {
			return pgconn.CommandTag{}, t.pool.auditErr
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected statement")
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	t.pool.committed = append(t.pool.committed, t.calls...)
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

// fakePool hands out fakeTx and keeps the statements of committed transactions.
type fakePool struct {
	updateRows string
	updateErr  error
	auditErr   error
	txs        []*fakeTx
	committed  []execCall
}

func newFakePool() *fakePool {
	return &fakePool{updateRows: "1"}
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{pool: p}
	p.txs = append(p.txs, tx)
	return tx, nil
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported by fakePool")
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("query row not supported by fakePool")
}

func (p *fakePool) auditRecords() []execCall {
	var out []execCall
	for _, c := range p.committed {
		if strings.HasPrefix(c.sql, "INSERT INTO admin_audit_log") {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakePool) mutations() []execCall {
	var out []execCall
	for _, c := range p.committed {
		if strings.HasPrefix(c.sql, "UPDATE admin_auction_monitoring") {
			out = append(out, c)
		}
	}
	return out
}

const (
	auctionID = "3f0b6a52-1111-4a55-8c1e-5d2a3e7f9c01"
	adminID   = "0f8fad5b-d9cb-469f-a165-70867728950e"
)

func TestFlagAuctionWritesMutationAndAuditInOneTransaction(t *testing.T) {
	pool := newFakePool()
	repo := NewRepository(pool)

	err := repo.FlagAuction(context.Background(), FlagInput{AuctionID: auctionID, AdminID: adminID, Reason: "Suspicious activity"})
	require.NoError(t, err)

	require.Len(t, pool.txs, 1)
	tx := pool.txs[0]
	assert.True(t, tx.committed)
	require.Len(t, tx.calls, 2)
	assert.Equal(t, []any{auctionID, "Suspicious activity", adminID}, tx.calls[0].args)

	records := pool.auditRecords()
	require.Len(t, records, 1)
	args := records[0].args
	assert.Equal(t, adminID, args[0])
	assert.Equal(t, ActionAuctionFlagged, args[1])
	assert.Equal(t, ResourceAuction, args[2])
	assert.Equal(t, auctionID, args[3])
	var details map[string]string
	require.NoError(t, json.Unmarshal(args[4].([]byte), &details))
	assert.Equal(t, map[string]string{"reason": "Suspicious activity"}, details)
}

func TestFlagAuctionUnknownAuctionWritesNothing(t *testing.T) {
	pool := newFakePool()
	pool.updateRows = "0"
	repo := NewRepository(pool)

	err := repo.FlagAuction(context.Background(), FlagInput{AuctionID: auctionID, AdminID: adminID, Reason: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, pool.txs[0].rolledBack)
	assert.Len(t, pool.txs[0].calls, 1, "audit must not be attempted after a failed mutation")
	assert.Empty(t, pool.committed)
}

func TestFlagAuctionAuditFailureRollsBackMutation(t *testing.T) {
	pool := newFakePool()
	pool.auditErr = errors.New("disk full")
	repo := NewRepository(pool)

	err := repo.FlagAuction(context.Background(), FlagInput{AuctionID: auctionID, AdminID: adminID, Reason: "x"})
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, pool.txs[0].rolledBack)
	assert.Empty(t, pool.mutations())
	assert.Empty(t, pool.auditRecords())
}

func TestFlagAuctionMutationFailure(t *testing.T) {
	pool := newFakePool()
	pool.updateErr = errors.New("relation does not exist")
	repo := NewRepository(pool)

	err := repo.FlagAuction(context.Background(), FlagInput{AuctionID: auctionID, AdminID: adminID, Reason: "x"})
	assert.ErrorContains(t, err, "relation does not exist")
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Empty(t, pool.committed)
}
