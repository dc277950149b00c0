package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceWindow(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first, last, err := Line{StartTime: "05:00", LastTime: "23:50"}.ServiceWindow(day)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC), last)

	_, last, err = Line{StartTime: "05:00", LastTime: "01:10"}.ServiceWindow(day)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 1, 10, 0, 0, time.UTC), last)

	_, _, err = Line{StartTime: "5am", LastTime: "01:10"}.ServiceWindow(day)
	assert.Error(t, err)
}
