package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

func sealed(t *testing.T, actor, prev string) deed.Record {
	t.Helper()
	d, err := deed.NewDraft(ecoIntent(actor), testNow)
	require.NoError(t, err)
	r, err := deed.New(d, prev)
	require.NoError(t, err)
	return r
}

func TestSQLBackend_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	backend := NewSQLBackend(db, "postgres")
	r := sealed(t, "alice", deed.GenesisHash)
	body, err := deed.Encode(r)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO deeds").
		WithArgs(int64(1), r.ID, r.PrevHash, r.SelfHash, string(body)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, backend.Append(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackend_InsertFailureIsIOFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	backend := NewSQLBackend(db, "postgres")
	r := sealed(t, "alice", deed.GenesisHash)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO deeds").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = backend.Append(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIOFailure))

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "insert", ioErr.Op)
	assert.Equal(t, r.ID, ioErr.RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackend_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	a := sealed(t, "alice", deed.GenesisHash)
	b := sealed(t, "bob", a.SelfHash)
	lineA, err := deed.Encode(a)
	require.NoError(t, err)
	lineB, err := deed.Encode(b)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT body FROM deeds").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(string(lineA)).AddRow(string(lineB)))

	records, err := NewSQLBackend(db, "postgres").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []deed.Record{a, b}, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackend_LoadCorruptRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT body FROM deeds").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow("garbage"))

	_, err = NewSQLBackend(db, "postgres").Load(context.Background())
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSQLBackend_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "deeds.db")

	backend, err := OpenSQL(ctx, "sqlite", dsn)
	require.NoError(t, err)
	c, err := Open(ctx, backend)
	require.NoError(t, err)

	var appended []deed.Record
	for _, actor := range []string{"alice", "bob", "carol"} {
		r, err := c.AppendIntent(ctx, ecoIntent(actor))
		require.NoError(t, err)
		appended = append(appended, r)
	}
	require.NoError(t, c.Close())

	backend, err = OpenSQL(ctx, "sqlite", dsn)
	require.NoError(t, err)
	reopened, err := Open(ctx, backend)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, appended, reopened.Records())
	assert.Equal(t, appended[2].SelfHash, reopened.TailHash())
}
