package generator

// IdeaCount is the fixed size of an idea batch.
const IdeaCount = 5

// Brief holds the raw answers collected by the dialogue.
type Brief struct {
	Niche  string
	Goal   string
	Format string
}

// Idea is one member of a batch; ID is its 1-based position.
type Idea struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	KeyElements []string `json:"key_elements"`
}

// Post is the finished text. Content is never empty.
type Post struct {
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action"`
}

// Complete is the result of the full pipeline.
type Complete struct {
	Post        Post
	ImagePrompt string
	ImageURL    string
	Image       []byte
}

// Field names a dialogue answer that can be reformulated for display.
type Field string

const (
	FieldNiche  Field = "niche"
	FieldGoal   Field = "goal"
	FieldFormat Field = "format"
)
