package chat

// User-facing replies.
const (
	MsgEmpty       = "❌ Empty message provided."
	MsgClarify     = "📍 Sure! Please tell me your city name (e.g., Colombo, Kandy, or Galle)."
	MsgNoPages     = "❌ I couldn't find relevant information. Try rephrasing your question."
	MsgUnavailable = "❌ The assistant is unavailable right now. Please try again in a moment."
	MsgServerError = "❌ Server error"
)

// DefaultCasualReplies answers exact small-talk phrases.
var DefaultCasualReplies = map[string]string{
	"hello":     "👋 Hello! How can I help you today?",
	"hi":        "Hi there! 😊 Ask me anything about SLT services.",
	"thanks":    "🙏 You're welcome!",
	"thank you": "Happy to help! 😊",
	"bye":       "👋 Goodbye! Have a great day.",
}

// DefaultBranchLabel prefixes the branch-detail reply.
const DefaultBranchLabel = "SLT Branch"

// locationKeywords route a message to the full location lookup.
var locationKeywords = []string{"branch", "location", "coverage", "area", "office"}
