package enrich

const (
	tagSystemPrompt = "You label patient stories for a search catalogue. " +
		"Return a comma-separated list of short topical tags for the submission. " +
		"Do not include names, addresses, phone numbers, emails or any other personal information. " +
		"Return only the list."

	themeSystemPrompt = "You read a patient's story and name its main themes. " +
		"Return at most 5 short themes as a comma-separated list. " +
		"Do not include personal information. Return only the list."

	metadataSystemPrompt = "You extract structured facts from a patient story submission. " +
		"The input contains the form answers followed by transcripts of attached media. " +
		"Fill every field of the schema. Use null for age and empty strings or an empty list when the information is absent."

	metadataSchemaName = "patient_story_metadata"
)

// metadataFields 结构化元数据的固定字段.
var metadataFields = []string{
	"name", "age", "location", "diagnosis", "events",
	"date_of_event", "emotion_of_event", "overall_theme",
}

// metadataSchema 声明给文本模型的 JSON Schema.
func metadataSchema() map[string]any {
	str := map[string]any{"type": "string"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             metadataFields,
		"properties": map[string]any{
			"name":             str,
			"age":              map[string]any{"type": []string{"integer", "null"}},
			"location":         str,
			"diagnosis":        str,
			"events":           map[string]any{"type": "array", "items": str},
			"date_of_event":    str,
			"emotion_of_event": str,
			"overall_theme":    str,
		},
	}
}
