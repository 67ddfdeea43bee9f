// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// chatClient is the slice of the OpenAI client the checker uses,
// narrowed for test doubles.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIChecker judges through an OpenAI-compatible chat endpoint.
type OpenAIChecker struct {
	client chatClient
	model  string
}

var _ Checker = (*OpenAIChecker)(nil)

// NewOpenAIChecker creates an OpenAIChecker.
//
// # Inputs
//
//   - apiKey: credential; falls back to OPENAI_API_KEY when empty.
//   - baseURL: endpoint override for compatible servers; empty uses
//     the OpenAI default.
//   - model: chat model name; defaults to gpt-4o-mini when empty.
//
// # Outputs
//
//   - *OpenAIChecker: ready to use.
//   - error: ErrUnavailable when no credential can be found.
func NewOpenAIChecker(apiKey, baseURL, model string) (*OpenAIChecker, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIChecker{client: openai.NewClientWithConfig(config), model: model}, nil
}

// Check sends the prompt as a single user message and parses the
// first choice.
func (c *OpenAIChecker) Check(ctx context.Context, req Request) (Verdict, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		Temperature: 0,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return ParseVerdict(req, resp.Choices[0].Message.Content)
}
