package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutor-ops-api/pkg/config"
)

func TestDSNQuotesValues(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "tutor", Password: "p@ss 'word'", Name: "tutor_ops"})
	assert.Equal(t, `host='db' port=5432 user='tutor' password='p@ss \'word\'' dbname='tutor_ops' sslmode=disable connect_timeout=5 application_name=tutor-ops-api`, dsn)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
}
