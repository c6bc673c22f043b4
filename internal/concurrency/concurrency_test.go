package concurrency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dupvault/internal/model"
)

func TestForProfileEco(t *testing.T) {
	tier := ForProfile(model.ProfileEco, 16)
	assert.Equal(t, 1, tier.Hashers)
	assert.Equal(t, 1, tier.CopyWorkers)
	assert.Equal(t, 1.0, tier.UpdateHz)
}

func TestForProfileBalanced(t *testing.T) {
	tier := ForProfile(model.ProfileBalanced, 8)
	assert.Equal(t, 2, tier.Hashers)
	assert.Equal(t, 2, tier.CopyWorkers)
	assert.Equal(t, 5.0, tier.UpdateHz)
}

func TestForProfileFast(t *testing.T) {
	tier := ForProfile(model.ProfileFast, 8)
	assert.Equal(t, 6, tier.Hashers)
}

func TestForProfileMax(t *testing.T) {
	tier := ForProfile(model.ProfileMax, 8)
	assert.Equal(t, 7, tier.Hashers)
	assert.Equal(t, 4, tier.CopyWorkers)

	small := ForProfile(model.ProfileMax, 2)
	assert.Equal(t, 2, small.CopyWorkers)
}

func TestForProfileNeverZeroOnLowCoreCounts(t *testing.T) {
	tier := ForProfile(model.ProfileBalanced, 1)
	assert.Equal(t, 1, tier.Hashers)
}
