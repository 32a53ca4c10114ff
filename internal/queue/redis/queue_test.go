package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffForGrowsExponentially(t *testing.T) {
	assert.Equal(t, 5*time.Second, backoffFor(1))
	assert.Equal(t, 10*time.Second, backoffFor(2))
	assert.Equal(t, 20*time.Second, backoffFor(3))
	assert.Equal(t, 40*time.Second, backoffFor(4))
}

func TestBackoffForCapsAt30Minutes(t *testing.T) {
	assert.Equal(t, 30*time.Minute, backoffFor(20))
}
