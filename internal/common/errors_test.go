package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingRequiredError_Message(t *testing.T) {
	err := &MissingRequiredError{Names: []string{"W9", "ISO 9001"}}
	assert.Equal(t, "required files missing: W9, ISO 9001", err.Error())
}

func TestMissingRequiredError_As(t *testing.T) {
	wrapped := fmt.Errorf("complete activity 7: %w", &MissingRequiredError{Names: []string{"A"}})

	var missing *MissingRequiredError
	require.True(t, errors.As(wrapped, &missing))
	assert.Equal(t, []string{"A"}, missing.Names)
}
