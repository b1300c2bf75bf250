package schemas

// Schema names accepted by Validate.
const (
	Requirements  = "requirements"
	Draft         = "draft"
	Critique      = "critique"
	TalkingPoints = "talking_points"
)

var registry = map[string]string{
	Requirements:  requirementsSchema,
	Draft:         draftSchema,
	Critique:      critiqueSchema,
	TalkingPoints: talkingPointsSchema,
}

const requirementsSchema = `{
  "type": "object",
  "required": ["requirements"],
  "properties": {
    "requirements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["skill", "category", "weight"],
        "properties": {
          "skill": {"type": "string", "minLength": 1},
          "category": {"type": "string"},
          "weight": {"type": "number", "exclusiveMinimum": 0},
          "quote": {"type": "string"}
        }
      }
    }
  }
}`

const draftSchema = `{
  "type": "object",
  "required": ["sections", "covered_requirement_ids"],
  "properties": {
    "sections": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "text"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "text": {"type": "string"}
        }
      }
    },
    "covered_requirement_ids": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

const critiqueSchema = `{
  "type": "object",
  "required": ["issues"],
  "properties": {
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "description", "severity"],
        "properties": {
          "requirement_id": {"type": "string"},
          "kind": {"type": "string", "enum": ["missing-coverage", "incorrect-claim", "tone", "length"]},
          "description": {"type": "string", "minLength": 1},
          "severity": {"type": "string", "enum": ["blocking", "major", "minor"]}
        }
      }
    }
  }
}`

const talkingPointsSchema = `{
  "type": "object",
  "required": ["talking_points"],
  "properties": {
    "talking_points": {
      "type": "array",
      "maxItems": 5,
      "items": {"type": "string"}
    }
  }
}`
