package config

type Model string

const (
	ModelGemini3ProPreview  Model = "gemini-3-pro-preview"
	ModelGeminiV25Pro       Model = "gemini-2.5-pro"
	ModelGeminiV25Flash     Model = "gemini-2.5-flash"
	ModelGeminiV25FlashLite Model = "gemini-2.5-flash-lite"
)

// DefaultModel is used when the operator does not override the model.
const DefaultModel = ModelGemini3ProPreview

func KnownModels() []Model {
	return []Model{
		ModelGemini3ProPreview,
		ModelGeminiV25Pro,
		ModelGeminiV25Flash,
		ModelGeminiV25FlashLite,
	}
}

// IsKnownModel reports whether m is one of the models the action was tested with.
// Unknown models are still allowed; the API decides.
func IsKnownModel(m Model) bool {
	for _, k := range KnownModels() {
		if k == m {
			return true
		}
	}
	return false
}
