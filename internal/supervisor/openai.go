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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI is a Backend over any OpenAI-compatible chat completions API.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI returns an OpenAI-compatible backend. baseURL may be empty.
func NewOpenAI(apiKey, baseURL, model string, maxTokens int) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &OpenAI{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Evaluate implements Backend.
func (o *OpenAI) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	started := time.Now()
	user, err := UserMessage(req)
	if err != nil {
		return Verdict{}, err
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(req)),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return Verdict{}, classify(ctx, "openai", started, err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, &TransportError{Backend: "openai", Err: errors.New("reply has no choices")}
	}
	v, err := ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return Verdict{}, &TransportError{Backend: "openai", Err: fmt.Errorf("malformed reply: %w", err)}
	}
	return v, nil
}
