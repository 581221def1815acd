package generator

// Settings selects models and sampling limits per generation purpose.
type Settings struct {
	TextModel     string // ideas, image prompts, reformulation
	PostModel     string
	FallbackModel string
	ImageModel    string
	ImageSize     string
	ImageQuality  string

	MaxTokensIdeas       int
	MaxTokensPost        int
	MaxTokensImagePrompt int
	MaxTokensReformulate int

	TemperatureIdeas       float64
	TemperaturePost        float64
	TemperatureImagePrompt float64
	TemperatureReformulate float64

	// ContentLimit caps how many runes of the post are embedded in the image prompt request.
	ContentLimit int
}

// DefaultSettings mirrors the production configuration.
func DefaultSettings() Settings {
	return Settings{
		TextModel:     "gpt-4o-mini",
		PostModel:     "gpt-5",
		FallbackModel: "gpt-4o",
		ImageModel:    "dall-e-3",
		ImageSize:     "1024x1024",
		ImageQuality:  "standard",

		MaxTokensIdeas:       1500,
		MaxTokensPost:        2500,
		MaxTokensImagePrompt: 500,
		MaxTokensReformulate: 50,

		TemperatureIdeas:       0.8,
		TemperaturePost:        0.7,
		TemperatureImagePrompt: 0.9,
		TemperatureReformulate: 0.3,

		ContentLimit: 1000,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.TextModel == "" {
		s.TextModel = d.TextModel
	}
	if s.PostModel == "" {
		s.PostModel = d.PostModel
	}
	if s.ImageModel == "" {
		s.ImageModel = d.ImageModel
	}
	if s.ImageSize == "" {
		s.ImageSize = d.ImageSize
	}
	if s.ImageQuality == "" {
		s.ImageQuality = d.ImageQuality
	}
	if s.MaxTokensImagePrompt <= 0 {
		s.MaxTokensImagePrompt = d.MaxTokensImagePrompt
	}
	if s.MaxTokensReformulate <= 0 {
		s.MaxTokensReformulate = d.MaxTokensReformulate
	}
	if s.ContentLimit <= 0 {
		s.ContentLimit = d.ContentLimit
	}
	return s
}
