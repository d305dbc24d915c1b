package db

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSplitStatementsDropsCommentsAndBlanks(t *testing.T) {
	stmts := splitStatements(`
-- chats
CREATE TABLE a (id INT);

  ;
-- only a comment;
CREATE INDEX b ON a (id);
`)
	require.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX b ON a (id)"}, stmts)
}

func TestMigrationFilesSorted(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "0001_init.sql", files[0])
}

func TestApplyMigrationsSkipsRecorded(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	files, err := migrationFiles()
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"name"})
	for _, f := range files {
		rows.AddRow(f)
	}
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT name FROM schema_migrations`).WillReturnRows(rows)

	require.NoError(t, ApplyMigrations(conn))
	require.NoError(t, mock.ExpectationsWereMet())
}
