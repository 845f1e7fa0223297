// Copyright 2026 The Hookwise Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/internal/policy"
)

// New builds the backend selected by cfg. A backend that cannot be set up
// (for instance a missing API key) is returned as Unavailable so the cascade
// degrades to a human instead of failing. Only an unknown backend name is an
// error.
func New(cfg policy.SupervisorConfig, team string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var b Backend
	switch strings.ToLower(cfg.Backend) {
	case "", policy.BackendNone:
		return Unavailable{Reason: "supervisor disabled"}, nil
	case policy.BackendSocket:
		path := cfg.SocketPath
		if path == "" {
			path = SocketPath(team)
		}
		b = NewSocket(path)
	case policy.BackendAnthropic:
		key, ok := apiKey(cfg.APIKeyEnv, "ANTHROPIC_API_KEY")
		if !ok {
			logger.Warn("supervisor: no API key, supervisor unavailable", "backend", cfg.Backend)
			return Unavailable{Reason: "no Anthropic API key"}, nil
		}
		b = NewAnthropic(key, cfg.BaseURL, cfg.Model, cfg.MaxTokens)
	case policy.BackendOpenAI:
		key, ok := apiKey(cfg.APIKeyEnv, "OPENAI_API_KEY")
		if !ok {
			logger.Warn("supervisor: no API key, supervisor unavailable", "backend", cfg.Backend)
			return Unavailable{Reason: "no OpenAI API key"}, nil
		}
		model := cfg.Model
		if strings.HasPrefix(model, "claude-") && cfg.BaseURL == "" {
			model = ""
		}
		b = NewOpenAI(key, cfg.BaseURL, model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("supervisor: unknown backend %q", cfg.Backend)
	}
	if cfg.Retries > 0 {
		b = &Retrying{Backend: b, Retries: cfg.Retries, Backoff: 100 * time.Millisecond, Logger: logger}
	}
	return b, nil
}

func apiKey(env, fallback string) (string, bool) {
	if env == "" {
		env = fallback
	}
	key := os.Getenv(env)
	return key, key != ""
}
