package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRows implements pgx.Rows over a fixed slice of domain values.
type fakeRows struct {
	values  []string
	pos     int
	scanErr error
	rowsErr error
	closed  bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.rowsErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	*(dest[0].(*string)) = r.values[r.pos-1]
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeQuerier struct {
	rows     *fakeRows
	err      error
	lastSQL  string
	lastArgs []any
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.lastSQL = sql
	q.lastArgs = args
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestNewEmptyConnectionString(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrEmptyConnectionString)
}

func TestDomains(t *testing.T) {
	rows := &fakeRows{values: []string{"a.example.org", "b.example.org"}}
	querier := &fakeQuerier{rows: rows}
	source := NewWithQuerier(querier, "custom_domains")

	domains, err := source.Domains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.org", "b.example.org"}, domains)
	assert.Contains(t, querier.lastSQL, "FROM custom_domains")
	assert.Contains(t, querier.lastSQL, "verified = true")
	assert.True(t, rows.closed)
}

func TestDomainsEmpty(t *testing.T) {
	source := NewWithQuerier(&fakeQuerier{rows: &fakeRows{}}, "")

	domains, err := source.Domains(context.Background())
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestDomainsQueryError(t *testing.T) {
	source := NewWithQuerier(&fakeQuerier{err: errors.New("connection refused")}, "")

	_, err := source.Domains(context.Background())
	assert.Error(t, err)
}

func TestDomainsScanError(t *testing.T) {
	rows := &fakeRows{values: []string{"a.example.org"}, scanErr: errors.New("type mismatch")}
	source := NewWithQuerier(&fakeQuerier{rows: rows}, "")

	_, err := source.Domains(context.Background())
	assert.Error(t, err)
	assert.True(t, rows.closed)
}

func TestDomainsRowsError(t *testing.T) {
	rows := &fakeRows{values: []string{"a.example.org"}, rowsErr: errors.New("connection lost")}
	source := NewWithQuerier(&fakeQuerier{rows: rows}, "")

	_, err := source.Domains(context.Background())
	assert.Error(t, err)
}
