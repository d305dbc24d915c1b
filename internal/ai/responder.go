package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/chatctx/internal/model"
)

// ChatRequest is everything the generator may see for one reply.
type ChatRequest struct {
	Agent   string
	Model   string
	Content string
	Context []model.ContextItem
	History []model.Message
}

type Responder struct {
	gen     IGenerator
	timeout time.Duration
}

func NewResponder(gen IGenerator, timeout time.Duration) *Responder {
	return &Responder{gen: gen, timeout: timeout}
}

func (r *Responder) Respond(ctx context.Context, req *ChatRequest) (*Reply, error) {
	if r.gen == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.gen.Generate(ctx, req.Model, BuildPrompt(req))
}

// BuildPrompt renders the agent prompt, the selected context and the history
// tail into a Prompt whose final turn is the user's content.
func BuildPrompt(req *ChatRequest) *Prompt {
	system, ok := AgentPrompt(req.Agent)
	if !ok {
		system, _ = AgentPrompt(AgentAssistant)
	}
	prompt := &Prompt{System: system}
	for _, item := range req.Context {
		prompt.Context = append(prompt.Context, fmt.Sprintf("[%s] %s", item.Sender, strings.TrimSpace(item.Content)))
	}
	for _, msg := range req.History {
		role := RoleUser
		if msg.Sender == model.SenderAssistant {
			role = RoleAssistant
		}
		prompt.Turns = append(prompt.Turns, Turn{Role: role, Text: msg.Content})
	}
	prompt.Turns = append(prompt.Turns, Turn{Role: RoleUser, Text: req.Content})
	return prompt
}
