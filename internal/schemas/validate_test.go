package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Requirements(t *testing.T) {
	valid := `{"requirements": [{"skill": "go", "category": "hard-skill", "weight": 0.8, "quote": "Go experience"}]}`
	assert.NoError(t, Validate(Requirements, valid))

	empty := `{"requirements": []}`
	assert.NoError(t, Validate(Requirements, empty))

	missingSkill := `{"requirements": [{"category": "hard-skill", "weight": 0.8}]}`
	err := Validate(Requirements, missingSkill)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Greater(t, len(ve.Errors), 0)

	zeroWeight := `{"requirements": [{"skill": "go", "category": "hard-skill", "weight": 0}]}`
	assert.Error(t, Validate(Requirements, zeroWeight))
}

func TestValidate_Draft(t *testing.T) {
	valid := `{"sections": [{"name": "summary", "text": "hello"}], "covered_requirement_ids": ["req_001"]}`
	assert.NoError(t, Validate(Draft, valid))

	noSections := `{"sections": [], "covered_requirement_ids": []}`
	assert.Error(t, Validate(Draft, noSections))

	missingCovered := `{"sections": [{"name": "summary", "text": "hello"}]}`
	assert.Error(t, Validate(Draft, missingCovered))
}

func TestValidate_Critique(t *testing.T) {
	valid := `{"issues": [{"requirement_id": "req_001", "kind": "missing-coverage", "description": "gap", "severity": "major"}]}`
	assert.NoError(t, Validate(Critique, valid))

	badKind := `{"issues": [{"kind": "vibes", "description": "x", "severity": "major"}]}`
	assert.Error(t, Validate(Critique, badKind))

	badSeverity := `{"issues": [{"kind": "tone", "description": "x", "severity": "catastrophic"}]}`
	assert.Error(t, Validate(Critique, badSeverity))
}

func TestValidate_TalkingPoints(t *testing.T) {
	valid := `{"talking_points": ["point one", "point two"]}`
	assert.NoError(t, Validate(TalkingPoints, valid))

	tooMany := `{"talking_points": ["1", "2", "3", "4", "5", "6"]}`
	assert.Error(t, Validate(TalkingPoints, tooMany))
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("bogus", `{}`)
	require.Error(t, err)
	var le *SchemaLoadError
	assert.True(t, errors.As(err, &le))
}

func TestValidate_MalformedJSON(t *testing.T) {
	assert.Error(t, Validate(Requirements, `{not json`))
}
