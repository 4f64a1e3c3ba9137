package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/cookiepool/internal/crypto"
	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/repository"
)

func newRepo(t *testing.T) (*CredentialRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewCredentialRepo(&DB{Pool: mock}, repository.NewCodec(nil), zaptest.NewLogger(t)), mock
}

func cred(value string, v model.Validity, created int64) model.Credential {
	return model.Credential{
		Value:     value,
		Identity:  crypto.Identity(value),
		CreatedAt: time.UnixMilli(created),
		Validity:  v,
	}
}

func encode(t *testing.T, c model.Credential) []byte {
	t.Helper()
	raw, err := repository.NewCodec(nil).Encode(c)
	require.NoError(t, err)
	return raw
}

func TestCredentialRepo_Add_Inserted(t *testing.T) {
	r, mock := newRepo(t)
	c := cred("a=1", model.Unknown, 1000)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(c.Identity, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted", "record"}).AddRow(true, encode(t, c)))
	mock.ExpectExec(`DELETE FROM credentials\s+WHERE identity IN`).
		WithArgs(6).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	got, inserted, err := r.Add(context.Background(), c, 6)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, c.Identity, got.Identity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_Add_ExistingKeepsValidation(t *testing.T) {
	r, mock := newRepo(t)
	prev := cred("a=1", model.Valid, 1000)
	prev.LastCheckedAt = time.UnixMilli(2000)
	fresh := cred("a=1", model.Unknown, 5000)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(fresh.Identity, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted", "record"}).AddRow(false, encode(t, prev)))
	mock.ExpectExec(`DELETE FROM credentials\s+WHERE identity IN`).
		WithArgs(6).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	got, inserted, err := r.Add(context.Background(), fresh, 6)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, model.Valid, got.Validity)
	require.Equal(t, int64(1000), got.CreatedAt.UnixMilli())
	require.Equal(t, int64(2000), got.LastCheckedAt.UnixMilli())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_Add_ExistingUnreadableIsReplaced(t *testing.T) {
	r, mock := newRepo(t)
	fresh := cred("a=1", model.Unknown, 5000)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(fresh.Identity, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted", "record"}).AddRow(false, []byte("garbage")))
	mock.ExpectExec(`UPDATE credentials SET record=\$2 WHERE identity=\$1`).
		WithArgs(fresh.Identity, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM credentials\s+WHERE identity IN`).
		WithArgs(6).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	got, inserted, err := r.Add(context.Background(), fresh, 6)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, model.Unknown, got.Validity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_Add_RollbackOnTrimError(t *testing.T) {
	r, mock := newRepo(t)
	c := cred("a=1", model.Unknown, 1000)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(c.Identity, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted", "record"}).AddRow(true, encode(t, c)))
	mock.ExpectExec(`DELETE FROM credentials\s+WHERE identity IN`).
		WithArgs(6).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, _, err := r.Add(context.Background(), c, 6)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_List_SkipsUnreadable(t *testing.T) {
	r, mock := newRepo(t)
	a := cred("a=1", model.Valid, 1000)
	b := cred("b=2", model.Unknown, 2000)

	mock.ExpectQuery(`SELECT identity, record FROM credentials ORDER BY seq DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"identity", "record"}).
			AddRow(b.Identity, encode(t, b)).
			AddRow("deadbeef", []byte("{not json")).
			AddRow(a.Identity, encode(t, a)))

	got, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, b.Value, got[0].Value)
	require.Equal(t, a.Value, got[1].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_List_QueryError(t *testing.T) {
	r, mock := newRepo(t)
	mock.ExpectQuery(`SELECT identity, record FROM credentials`).WillReturnError(errors.New("down"))

	_, err := r.List(context.Background())
	require.Error(t, err)
}

func TestCredentialRepo_Update(t *testing.T) {
	r, mock := newRepo(t)
	c := cred("a=1", model.Invalid, 1000)
	c.LastCheckedAt = time.UnixMilli(3000)

	mock.ExpectExec(`UPDATE credentials SET record=\$2 WHERE identity=\$1`).
		WithArgs(c.Identity, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Update(context.Background(), c))

	mock.ExpectExec(`UPDATE credentials SET record=\$2 WHERE identity=\$1`).
		WithArgs(c.Identity, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Update(context.Background(), c), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_RemoveWhere(t *testing.T) {
	r, mock := newRepo(t)
	a := cred("a=1", model.Invalid, 1000)
	b := cred("b=2", model.Valid, 2000)
	c := cred("c=3", model.Invalid, 3000)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT identity, record FROM credentials ORDER BY seq DESC FOR UPDATE`).
		WillReturnRows(pgxmock.NewRows([]string{"identity", "record"}).
			AddRow(c.Identity, encode(t, c)).
			AddRow(b.Identity, encode(t, b)).
			AddRow(a.Identity, encode(t, a)))
	mock.ExpectExec(`DELETE FROM credentials WHERE identity = ANY\(\$1\)`).
		WithArgs([]string{c.Identity, a.Identity}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	n, err := r.RemoveWhere(context.Background(), func(c model.Credential) bool { return c.Validity == model.Invalid })
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_RemoveWhere_NothingMatches(t *testing.T) {
	r, mock := newRepo(t)
	b := cred("b=2", model.Valid, 2000)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(pgxmock.NewRows([]string{"identity", "record"}).AddRow(b.Identity, encode(t, b)))
	mock.ExpectCommit()

	n, err := r.RemoveWhere(context.Background(), func(c model.Credential) bool { return c.Validity == model.Invalid })
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
