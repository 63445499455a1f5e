package upgrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions_Ordering(t *testing.T) {
	assert.Equal(t, -1, CompareVersions("17.2.0", "17.2.1"))
	assert.Equal(t, 1, CompareVersions("18.0.0", "17.2.1"))
	assert.Equal(t, 0, CompareVersions("17.2.1", "17.2.1"))
}

func TestCompareVersions_UnparseableSortsLow(t *testing.T) {
	assert.Equal(t, -1, CompareVersions("not-a-version", "17.2.1"))
	assert.Equal(t, 1, CompareVersions("17.2.1", "not-a-version"))
}
