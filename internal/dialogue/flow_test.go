// ABOUTME: Tests for the flow table and its validation
// ABOUTME: Covers the default script and broken tables Validate must reject

package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFlow_Valid(t *testing.T) {
	flow := DefaultFlow()
	require.NoError(t, flow.Validate())

	assert.Len(t, flow.Branches, 7)
	// START, 14 branch steps, 3 tail states
	assert.Len(t, flow.States(), 18)
}

func TestDefaultFlow_BranchEntries(t *testing.T) {
	flow := DefaultFlow()
	for _, b := range flow.Branches {
		step, ok := flow.Steps[b.Entry]
		require.True(t, ok, "branch %s entry %s", b.ID, b.Entry)
		assert.Equal(t, b.ID, step.Branch)
	}
}

func TestFlowValidate_UnknownTarget(t *testing.T) {
	flow := DefaultFlow()
	flow.Steps[StateKad1].Choices[0].Next = "NOWHERE"

	err := flow.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOWHERE")
}

func TestFlowValidate_ForeignField(t *testing.T) {
	flow := DefaultFlow()
	flow.Steps[StateTax1].Field = FieldLandDesc

	err := flow.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "land_desc")
}

func TestFlowValidate_ShadowedChoice(t *testing.T) {
	flow := DefaultFlow()
	flow.Steps[StateReplan1].Choices = append(flow.Steps[StateReplan1].Choices, Choice{Label: "Меню"})

	err := flow.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shadowed")
}

func TestFlowValidate_DuplicateBranchLabel(t *testing.T) {
	flow := DefaultFlow()
	flow.Branches[1].Label = "💰 " + flow.Branches[0].Label

	require.Error(t, flow.Validate())
}

func TestChoice_StoredValue(t *testing.T) {
	assert.Equal(t, "жилое", Choice{Label: "Жилое", Value: "жилое"}.StoredValue())
	assert.Equal(t, "ИЖС", Choice{Label: "ИЖС", Icon: "🏡"}.StoredValue())
	assert.Equal(t, "🏡 ИЖС", Choice{Label: "ИЖС", Icon: "🏡"}.ButtonText())
}
