package obs_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/stretchr/testify/assert"

	"github.com/port-labs/ocean-core/internal/obs"
)

func TestFromContextDefaultsToDiscard(t *testing.T) {
	assert.Equal(t, logr.Discard(), obs.FromContext(context.Background()))
}

func TestNewContextRoundTrips(t *testing.T) {
	log := stdr.New(nil)
	ctx := obs.NewContext(context.Background(), log)
	assert.Equal(t, log, obs.FromContext(ctx))
}

func TestNewTraceIDIsUnique(t *testing.T) {
	a, b := obs.NewTraceID(), obs.NewTraceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
