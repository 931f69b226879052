package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatesBetween(t *testing.T) {
	dates, err := datesBetween("2024-02-27", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, dates)

	dates, err = datesBetween("2024-03-01", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, dates, 1)

	_, err = datesBetween("2024-03-02", "2024-03-01")
	assert.Error(t, err)

	_, err = datesBetween("March", "2024-03-01")
	assert.Error(t, err)
}
