package factory

import (
	"fmt"
	"os"
	"strings"

	"github.com/opsmind/opsmind/llm"
	geminiprov "github.com/opsmind/opsmind/providers/gemini"
	openaiprov "github.com/opsmind/opsmind/providers/openai"
)

// FromEnv builds the configured LLM provider. OPSMIND_PROVIDER selects the
// backend; the per-role model names from config override per request.
func FromEnv() (llm.Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(getenv("OPSMIND_PROVIDER", "openai")))
	switch provider {
	case "openai":
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when OPSMIND_PROVIDER=openai")
		}
		model := getenv("OPENAI_MODEL", "gpt-4o-mini")
		baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

		opts := []openaiprov.Option{openaiprov.WithModel(model)}
		if baseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(baseURL))
		}
		return openaiprov.New(key, opts...)

	case "gemini":
		key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when OPSMIND_PROVIDER=gemini")
		}
		model := getenv("GEMINI_MODEL", "gemini-2.5-flash")
		return geminiprov.New(key, geminiprov.WithModel(model))
	}

	return nil, fmt.Errorf("unsupported OPSMIND_PROVIDER %q (use openai or gemini)", provider)
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}
