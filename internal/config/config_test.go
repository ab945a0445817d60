package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionsConfDefaults(t *testing.T) {
	var c SessionsConf

	assert.Equal(t, int64(3), c.CostFor(3))
	assert.Equal(t, 15, c.ProcessTimeoutMinutes())
	assert.Equal(t, 10, c.RecoveryTimeoutMinutes())
	assert.Equal(t, 5, c.QuickTimeoutMinutes())
	assert.Equal(t, 24, c.CleanupHours())
	assert.Equal(t, 5, c.PollInterval())
	assert.Equal(t, 3, c.MaxRetries())
	assert.Equal(t, int64(10), c.SignupBonus())
}

func TestSessionsConfOverrides(t *testing.T) {
	c := SessionsConf{
		CostPerModel:       2,
		SignupBonusCredits: -1,
		ProcessTimeoutMin:  30,
	}

	assert.Equal(t, int64(8), c.CostFor(4))
	assert.Equal(t, int64(0), c.SignupBonus())
	assert.Equal(t, 30, c.ProcessTimeoutMinutes())
}
