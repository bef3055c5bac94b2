package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeINI(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestd.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPicksLocalSectionWhenUseCloudFalse(t *testing.T) {
	path := writeINI(t, `
[usecloud]
usecloud = false

[local]
host = 127.0.0.1
port = 3306
dbname = ingestd
user = ingest
password = secret

[symbols]
realtime = SPY
backfill = SPY,QQQ,AAPL
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.UseCloud)
	assert.Equal(t, "127.0.0.1", cfg.Database.Host)
	assert.Equal(t, "ingestd", cfg.Database.DBName)
	assert.Equal(t, "SPY", cfg.Symbols.Realtime)
	assert.Equal(t, []string{"SPY", "QQQ", "AAPL"}, cfg.Symbols.Backfill)
	assert.Equal(t, "127.0.0.1", cfg.Broker.Host)
	assert.Equal(t, 7496, cfg.Broker.Port)
}

func TestLoadPicksCloudSectionWhenUseCloudTrue(t *testing.T) {
	path := writeINI(t, `
[usecloud]
usecloud = true

[cloud]
host = db.example.internal
port = 3306
dbname = ingestd
user = ingest
password = secret

[local]
host = 127.0.0.1
port = 3306
dbname = ingestd
user = ingest
password = secret

[symbols]
realtime = SPY
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.UseCloud)
	assert.Equal(t, "db.example.internal", cfg.Database.Host)
}

func TestLoadFailsWhenActiveDatabaseSectionMissing(t *testing.T) {
	path := writeINI(t, `
[usecloud]
usecloud = true

[symbols]
realtime = SPY
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFailsWhenRequiredDatabaseKeyMissing(t *testing.T) {
	path := writeINI(t, `
[usecloud]
usecloud = false

[local]
host = 127.0.0.1
port = 3306

[symbols]
realtime = SPY
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFailsWhenSymbolsSectionMissing(t *testing.T) {
	path := writeINI(t, `
[usecloud]
usecloud = false

[local]
host = 127.0.0.1
port = 3306
dbname = ingestd
user = ingest
password = secret
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	assert.Error(t, err)
}

func TestMySQLDSNFormatsDriverString(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{User: "ingest", Password: "secret", Host: "db", Port: 3306, DBName: "ingestd"}}
	assert.Equal(t, "ingest:secret@tcp(db:3306)/ingestd?parseTime=true&multiStatements=true", cfg.MySQLDSN())
}
