package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fire-command", cfg.AppName)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.PersistenceTimeout)
	assert.Equal(t, time.Minute, cfg.Dispatch.ReconcileInterval)
	assert.True(t, cfg.Dispatch.AutoDispatch)
	assert.Equal(t, 4, cfg.Dispatch.CrewSizes["FIRE"])
	assert.Equal(t, 64, cfg.WS.SendQueue)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DISPATCH_CREW_SIZES", "FIRE:6,RESCUE:2")
	t.Setenv("DISPATCH_PERSISTENCE_TIMEOUT", "250ms")
	t.Setenv("WS_SEND_QUEUE", "8")
	t.Setenv("KEYCLOAK_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, map[string]int{"FIRE": 6, "RESCUE": 2}, cfg.Dispatch.CrewSizes)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.PersistenceTimeout)
	assert.Equal(t, 8, cfg.WS.SendQueue)
	assert.True(t, cfg.Keycloak.Enabled)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Dispatch.DefaultCrew = 0
	cfg.WS.SendQueue = 0
	cfg.MQTT.QoS = 3

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_DEFAULT_CREW")
	assert.Contains(t, err.Error(), "WS_SEND_QUEUE")
	assert.Contains(t, err.Error(), "MQTT_QOS")
}

func TestCrewSize(t *testing.T) {
	d := DispatchConfig{CrewSizes: map[string]int{"FIRE": 4, "OTHER": 0}}

	n, ok := d.CrewSize("fire")
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = d.CrewSize("OTHER")
	assert.False(t, ok)

	_, ok = d.CrewSize("HAZMAT")
	assert.False(t, ok)
}
