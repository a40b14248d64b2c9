package types_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityDocumentPrimaryType(t *testing.T) {
	doc := &types.EntityDocument{
		ID:    "winged_altar",
		Label: "Winged Altar",
		Types: []string{"E22_Human-Made_Object", "E24_Physical_Human-Made_Thing"},
	}
	assert.Equal(t, "E22_Human-Made_Object", doc.PrimaryType())

	untyped := &types.EntityDocument{ID: "unknown_fragment"}
	assert.Equal(t, "", untyped.PrimaryType())
}

func TestNotFoundErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("resolving candidate: %w", &types.NotFoundError{ID: "village_of_flechtingen"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	var nfe *types.NotFoundError
	require.True(t, errors.As(err, &nfe))
	assert.Equal(t, "village_of_flechtingen", nfe.ID)
	assert.Contains(t, err.Error(), "entity not found: village_of_flechtingen")
}

func TestDanglingReferenceError(t *testing.T) {
	err := &types.DanglingReferenceError{
		Source:  "altar_panel",
		Target:  "lost_workshop",
		Kind:    "P108i_was_produced_by",
		Missing: "lost_workshop",
	}

	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Equal(t,
		"dangling edge altar_panel -[P108i_was_produced_by]-> lost_workshop: unknown entity lost_workshop",
		err.Error())
}

func TestConfigurationError(t *testing.T) {
	err := &types.ConfigurationError{Field: "scoring.vector_weight", Reason: "weights must sum to 1.0"}

	var ce *types.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "invalid configuration scoring.vector_weight: weights must sum to 1.0", err.Error())
	assert.False(t, errors.Is(err, types.ErrNotFound))
}
