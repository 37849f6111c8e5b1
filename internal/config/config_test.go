package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Addr:         ":8080",
		DatabasePath: "posts.db",
		PollInterval: DefaultPollInterval,
		MaxRetries:   DefaultMaxRetries,
	}
	assert.NoError(t, valid.Validate())

	noDB := valid
	noDB.DatabasePath = ""
	assert.Error(t, noDB.Validate())

	badInterval := valid
	badInterval.PollInterval = 0
	assert.Error(t, badInterval.Validate())

	badInterval.PollInterval = -time.Second
	assert.Error(t, badInterval.Validate())

	badRetries := valid
	badRetries.MaxRetries = -1
	assert.Error(t, badRetries.Validate())
}
