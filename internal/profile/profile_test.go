package profile

import (
	"os"
	"testing"
)

func TestAIProfileDefaults(t *testing.T) {
	clearAIEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"AIEnabled should be false by default", "false", boolToString(profile.AIEnabled)},
		{"AIEmbeddingProvider default", "openai", profile.AIEmbeddingProvider},
		{"AILLMProvider default", "openai", profile.AILLMProvider},
		{"AIOpenAIBaseURL default", "https://api.openai.com/v1", profile.AIOpenAIBaseURL},
		{"AISiliconFlowBaseURL default", "https://api.siliconflow.cn/v1", profile.AISiliconFlowBaseURL},
		{"AIEmbeddingModel default", "text-embedding-3-small", profile.AIEmbeddingModel},
		{"AILLMModel default", "gpt-4o-mini", profile.AILLMModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if profile.AIEmbeddingDims != 1024 {
		t.Errorf("AIEmbeddingDims: expected 1024, got %d", profile.AIEmbeddingDims)
	}
	if profile.AILLMMaxTokens != 2048 {
		t.Errorf("AILLMMaxTokens: expected 2048, got %d", profile.AILLMMaxTokens)
	}
}

func TestAIProfileFromEnv(t *testing.T) {
	clearAIEnvVars()

	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "LOOM_AI_ENABLED=true",
			envVar:   "LOOM_AI_ENABLED",
			envValue: "true",
			field:    func(p *Profile) string { return boolToString(p.AIEnabled) },
			expected: "true",
		},
		{
			name:     "LOOM_AI_EMBEDDING_PROVIDER",
			envVar:   "LOOM_AI_EMBEDDING_PROVIDER",
			envValue: "siliconflow",
			field:    func(p *Profile) string { return p.AIEmbeddingProvider },
			expected: "siliconflow",
		},
		{
			name:     "LOOM_AI_OPENAI_API_KEY",
			envVar:   "LOOM_AI_OPENAI_API_KEY",
			envValue: "openai-key",
			field:    func(p *Profile) string { return p.AIOpenAIAPIKey },
			expected: "openai-key",
		},
		{
			name:     "LOOM_AI_OPENAI_BASE_URL",
			envVar:   "LOOM_AI_OPENAI_BASE_URL",
			envValue: "https://custom.openai.proxy/v1",
			field:    func(p *Profile) string { return p.AIOpenAIBaseURL },
			expected: "https://custom.openai.proxy/v1",
		},
		{
			name:     "LOOM_AI_LLM_MODEL",
			envVar:   "LOOM_AI_LLM_MODEL",
			envValue: "gpt-4",
			field:    func(p *Profile) string { return p.AILLMModel },
			expected: "gpt-4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAIEnvVars()
			os.Setenv(tt.envVar, tt.envValue)

			profile := &Profile{}
			profile.FromEnv()

			actual := tt.field(profile)
			if actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, actual)
			}
		})
	}
}

func TestIsAIEnabled(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(*Profile)
		expectedResult bool
	}{
		{
			name: "AIEnabled=false should return false",
			setup: func(p *Profile) {
				p.AIEnabled = false
			},
			expectedResult: false,
		},
		{
			name: "AIEnabled=true but no API key should return false",
			setup: func(p *Profile) {
				p.AIEnabled = true
			},
			expectedResult: false,
		},
		{
			name: "AIEnabled=true with OpenAI API key should return true",
			setup: func(p *Profile) {
				p.AIEnabled = true
				p.AIOpenAIAPIKey = "test-key"
			},
			expectedResult: true,
		},
		{
			name: "AIEnabled=true with SiliconFlow API key should return true",
			setup: func(p *Profile) {
				p.AIEnabled = true
				p.AISiliconFlowAPIKey = "test-key"
			},
			expectedResult: true,
		},
		{
			name: "AIEnabled=false with API keys should return false",
			setup: func(p *Profile) {
				p.AIEnabled = false
				p.AIOpenAIAPIKey = "test-key"
			},
			expectedResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := &Profile{}
			tt.setup(profile)
			result := profile.IsAIEnabled()
			if result != tt.expectedResult {
				t.Errorf("IsAIEnabled(): expected %v, got %v", tt.expectedResult, result)
			}
		})
	}
}

func clearAIEnvVars() {
	aiEnvVars := []string{
		"LOOM_AI_ENABLED",
		"LOOM_AI_EMBEDDING_PROVIDER",
		"LOOM_AI_LLM_PROVIDER",
		"LOOM_AI_OPENAI_API_KEY",
		"LOOM_AI_OPENAI_BASE_URL",
		"LOOM_AI_SILICONFLOW_API_KEY",
		"LOOM_AI_SILICONFLOW_BASE_URL",
		"LOOM_AI_EMBEDDING_MODEL",
		"LOOM_AI_EMBEDDING_DIMS",
		"LOOM_AI_LLM_MODEL",
		"LOOM_AI_LLM_MAX_TOKENS",
		"LOOM_AI_LLM_TEMPERATURE",
		"LOOM_AI_REQUESTS_PER_SECOND",
		"LOOM_VECTOR_DSN",
	}
	for _, envVar := range aiEnvVars {
		os.Unsetenv(envVar)
	}
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
