package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointValueLookup(t *testing.T) {
	assert.Equal(t, 2.0, PointValue("MNQ"))
	assert.Equal(t, 50.0, PointValue("ES"))
	assert.Equal(t, 1000.0, PointValue("CL"))
	assert.Equal(t, 0.1, PointValue("MBT"))
}

func TestPointValueNormalization(t *testing.T) {
	assert.Equal(t, 2.0, PointValue(" mnq "))
	assert.Equal(t, 50.0, PointValue("es"))
}

func TestPointValueDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1.0, PointValue("AAPL"))
	// Month-coded contract names are not stripped; exact keys only.
	assert.Equal(t, 1.0, PointValue("MNQU5"))
	assert.Equal(t, 1.0, PointValue(""))
}
