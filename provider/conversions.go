package provider

import (
	"github.com/openai/openai-go/v3"

	"llmgate/model"
)

// toOpenAIMessages converts the canonical request into the Chat Completions
// message envelope. The transform always starts from the generic history, so
// re-applying it turn after turn is idempotent.
//
// Tool results become role=tool messages correlated by call id; assistant
// messages that requested tools replay those requests so the provider sees
// the full call/result pairing.
func toOpenAIMessages(req *model.Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))

		case model.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))

		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: call.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      call.Name,
							Arguments: call.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case model.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))

		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}

	return out
}

// toOpenAITools converts the catalogue into Chat Completions tool params.
// Either catalogue shape is accepted; the wire shape is always the wrapper.
func toOpenAITools(catalogue []model.ToolDescriptor) []openai.ChatCompletionToolUnionParam {
	if len(catalogue) == 0 {
		return nil
	}

	out := make([]openai.ChatCompletionToolUnionParam, len(catalogue))
	for i, d := range catalogue {
		params := openai.FunctionParameters{}
		for k, v := range d.DeclaredSchema() {
			params[k] = v
		}
		out[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        d.DeclaredName(),
				Description: openai.String(d.DeclaredDescription()),
				Parameters:  params,
			},
		)
	}
	return out
}

// mapOpenAIUsage maps the SDK usage counters onto the canonical superset.
// OpenAI reports a single cached-token counter inside the prompt details.
func mapOpenAIUsage(u openai.CompletionUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:  int(u.PromptTokens),
		OutputTokens: int(u.CompletionTokens),
		CachedTokens: int(u.PromptTokensDetails.CachedTokens),
	}
}
