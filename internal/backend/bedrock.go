package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockBackend generates text through the Bedrock Converse API. The
// highest-reasoning backend in the pool.
type BedrockBackend struct {
	api     bedrockConverseAPI
	modelID string
}

func NewBedrockBackend(api bedrockConverseAPI, modelID string) *BedrockBackend {
	if api == nil {
		panic("backend: bedrock converse client cannot be nil")
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	return &BedrockBackend{api: api, modelID: modelID}
}

func (b *BedrockBackend) Name() string { return "bedrock" }

func (b *BedrockBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("backend: prompt is required")
	}

	out, err := b.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		Messages: []brtypes.Message{{
			Role: brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: prompt},
			},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(500),
			Temperature: aws.Float32(0.7),
		},
	})
	if err != nil {
		return "", fmt.Errorf("backend: bedrock converse failed: %w", err)
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("backend: bedrock returned no message output")
	}
	var builder strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(text.Value)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("backend: bedrock returned empty response")
	}
	return text, nil
}
