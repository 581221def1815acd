package generator

import (
	"strings"

	"github.com/tidwall/gjson"

	"content_ideas_assistant/failure"
)

// stripFences removes a Markdown code fence some models wrap JSON in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseJSON(op, raw string) (gjson.Result, error) {
	s := stripFences(raw)
	if s == "" || !gjson.Valid(s) {
		return gjson.Result{}, failure.Generation(op, "response is not valid JSON")
	}
	return gjson.Parse(s), nil
}

// ParseIdeas validates an idea batch. Extra items are dropped and ids are
// reassigned to positions; fewer than IdeaCount items is an error.
func ParseIdeas(raw string) ([]Idea, error) {
	const op = "parse ideas"
	doc, err := parseJSON(op, raw)
	if err != nil {
		return nil, err
	}
	list := doc.Get("ideas")
	if !list.Exists() {
		return nil, failure.Generation(op, "field 'ideas' is missing")
	}
	if !list.IsArray() {
		return nil, failure.Generation(op, "field 'ideas' is not a list")
	}
	items := list.Array()
	if len(items) < IdeaCount {
		return nil, failure.Generation(op, "got %d ideas, want %d", len(items), IdeaCount)
	}

	ideas := make([]Idea, 0, IdeaCount)
	for i, item := range items[:IdeaCount] {
		pos := i + 1
		for _, field := range []string{"id", "title", "description", "key_elements"} {
			if !item.Get(field).Exists() {
				return nil, failure.Generation(op, "idea %d: field '%s' is missing", pos, field)
			}
		}
		elems := item.Get("key_elements")
		if !elems.IsArray() {
			return nil, failure.Generation(op, "idea %d: field 'key_elements' is not a list", pos)
		}
		keys := make([]string, 0, len(elems.Array()))
		for _, el := range elems.Array() {
			if v := strings.TrimSpace(el.String()); v != "" {
				keys = append(keys, v)
			}
		}
		ideas = append(ideas, Idea{
			ID:          pos,
			Title:       strings.TrimSpace(item.Get("title").String()),
			Description: strings.TrimSpace(item.Get("description").String()),
			KeyElements: keys,
		})
	}
	return ideas, nil
}

// ParsePost validates a post; hashtags and call_to_action are optional.
func ParsePost(raw string) (Post, error) {
	const op = "parse post"
	doc, err := parseJSON(op, raw)
	if err != nil {
		return Post{}, err
	}
	post := doc.Get("post")
	if !post.IsObject() {
		return Post{}, failure.Generation(op, "field 'post' is missing")
	}
	for _, field := range []string{"title", "content"} {
		if !post.Get(field).Exists() {
			return Post{}, failure.Generation(op, "field '%s' is missing", field)
		}
	}
	content := strings.TrimSpace(post.Get("content").String())
	if content == "" {
		return Post{}, failure.Generation(op, "post content is empty")
	}

	tags := []string{}
	if h := post.Get("hashtags"); h.IsArray() {
		for _, t := range h.Array() {
			if tag := strings.TrimSpace(strings.TrimLeft(t.String(), "#")); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return Post{
		Title:        strings.TrimSpace(post.Get("title").String()),
		Content:      content,
		Hashtags:     tags,
		CallToAction: strings.TrimSpace(post.Get("call_to_action").String()),
	}, nil
}

// ParseImagePrompt extracts image_prompt.full_prompt.
func ParseImagePrompt(raw string) (string, error) {
	const op = "parse image prompt"
	doc, err := parseJSON(op, raw)
	if err != nil {
		return "", err
	}
	if !doc.Get("image_prompt").Exists() {
		return "", failure.Generation(op, "field 'image_prompt' is missing")
	}
	prompt := strings.TrimSpace(doc.Get("image_prompt.full_prompt").String())
	if prompt == "" {
		return "", failure.Generation(op, "field 'full_prompt' is missing")
	}
	return prompt, nil
}

// cleanReformulation trims whitespace and surrounding quotes.
func cleanReformulation(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'«»`)
	return strings.TrimSpace(s)
}
