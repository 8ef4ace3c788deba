package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sessionforge/sessionforge/internal/models"
)

func TestSelect_NeedsShellAlwaysGoesToPods(t *testing.T) {
	req := &models.CreateSessionRequest{NeedsShell: true, ExpectedDurationMinutes: 5}
	assert.Equal(t, models.ProviderPods, Select(req))
}

func TestSelect_LongLivedGoesToPods(t *testing.T) {
	req := &models.CreateSessionRequest{LongLived: true}
	assert.Equal(t, models.ProviderPods, Select(req))
}

func TestSelect_LongExpectedDurationGoesToPods(t *testing.T) {
	req := &models.CreateSessionRequest{ExpectedDurationMinutes: 61}
	assert.Equal(t, models.ProviderPods, Select(req))
}

func TestSelect_ShortDurationDefaultsToJobs(t *testing.T) {
	req := &models.CreateSessionRequest{ExpectedDurationMinutes: 60}
	assert.Equal(t, models.ProviderJobs, Select(req))
}

func TestSelect_NoHintsDefaultsToJobs(t *testing.T) {
	req := &models.CreateSessionRequest{}
	assert.Equal(t, models.ProviderJobs, Select(req))
}
