package gateway

import (
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// restrictedPrefixes lists model families that only accept the default
// temperature and take max_completion_tokens instead of max_tokens.
var restrictedPrefixes = []string{"gpt-5", "o1-preview", "o1-mini", "o3-mini", "o3"}

func isRestricted(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

// SupportsTemperature reports whether an explicit temperature may be sent to model.
func SupportsTemperature(model string) bool { return !isRestricted(model) }

// UsesCompletionTokens reports whether model expects max_completion_tokens.
func UsesCompletionTokens(model string) bool { return isRestricted(model) }

func chatParams(req ChatRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Temperature != nil && SupportsTemperature(req.Model) {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		if UsesCompletionTokens(req.Model) {
			params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
		} else {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

const dallE3 = "dall-e-3"

// ClampImage rewrites an image request into something the model accepts:
// dall-e-3 renders one image per call, other models only take "standard" quality.
func ClampImage(req ImageRequest) ImageRequest {
	if req.Size == "" {
		req.Size = "1024x1024"
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if strings.EqualFold(req.Model, dallE3) {
		req.Count = 1
		if req.Quality == "" {
			req.Quality = "standard"
		}
	} else {
		req.Quality = "standard"
	}
	return req
}

func imageParams(req ImageRequest) openai.ImageGenerateParams {
	req = ClampImage(req)
	return openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(req.Model),
		Size:           openai.ImageGenerateParamsSize(req.Size),
		Quality:        openai.ImageGenerateParamsQuality(req.Quality),
		N:              openai.Int(int64(req.Count)),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	}
}
