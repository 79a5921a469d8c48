package language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Route binds a detected language to an embedding model, its vector
// dimensionality, and the collection that model's vectors live in.
type Route struct {
	Model      string
	Dimensions int
	Collection string
}

// Router picks the embedding model and target collection for a piece of
// text. Routing is deterministic and pure.
type Router struct {
	routes map[string]Route
}

// DefaultRoutes is the BGE-family table served by SiliconFlow-compatible
// providers. The "default" entry covers languages detection cannot place.
func DefaultRoutes() map[string]Route {
	return map[string]Route{
		"zh":      {Model: "BAAI/bge-large-zh-v1.5", Dimensions: 1024, Collection: "my_knowledge_bge-large-zh-v1.5"},
		"en":      {Model: "BAAI/bge-large-en-v1.5", Dimensions: 1024, Collection: "my_knowledge_bge-large-en-v1.5"},
		"default": {Model: "BAAI/bge-m3", Dimensions: 1024, Collection: "my_knowledge_bge-m3"},
	}
}

// GeminiRoutes maps every language to Gemini's multilingual embedding
// model; separate collections keep the routing shape identical.
func GeminiRoutes() map[string]Route {
	return map[string]Route{
		"zh":      {Model: "text-embedding-004", Dimensions: 768, Collection: "my_knowledge_gemini_zh"},
		"en":      {Model: "text-embedding-004", Dimensions: 768, Collection: "my_knowledge_gemini_en"},
		"default": {Model: "text-embedding-004", Dimensions: 768, Collection: "my_knowledge_gemini_default"},
	}
}

func NewRouter(routes map[string]Route) *Router {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Router{routes: routes}
}

// Detect classifies text as "zh" or "en". Digits and whitespace carry no
// language signal and are stripped first. Short or undetermined input goes
// to "zh", as does every non-English language: the corpus this serves is
// Chinese-dominant, so the bias is deliberate.
func (r *Router) Detect(text string) string {
	stripped := stripNoise(text)
	if len([]rune(stripped)) < 3 {
		return "zh"
	}
	info := whatlanggo.Detect(stripped)
	switch info.Lang {
	case -1: // undetermined
		return "zh"
	case whatlanggo.Cmn:
		return "zh"
	case whatlanggo.Eng:
		return "en"
	}
	return "zh"
}

// RouteFor returns the routing entry for a language, falling back to the
// "default" entry for anything the table does not name.
func (r *Router) RouteFor(lang string) Route {
	if rt, ok := r.routes[lang]; ok {
		return rt
	}
	return r.routes["default"]
}

// RouteText detects and routes in one step; this is the per-document call
// at ingestion time and the per-query call at search time.
func (r *Router) RouteText(text string) (string, Route) {
	lang := r.Detect(text)
	return lang, r.RouteFor(lang)
}

// Routes lists every configured route, the default entry included.
func (r *Router) Routes() map[string]Route {
	out := make(map[string]Route, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out
}

func stripNoise(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}
