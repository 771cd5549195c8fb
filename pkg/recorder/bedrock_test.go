package recorder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

type fakeBedrock struct {
	input  *bedrockruntime.InvokeModelInput
	output *bedrockruntime.InvokeModelOutput
	err    error
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	return f.output, f.err
}

func TestBedrockInvoker_InvokeModel(t *testing.T) {
	out := &bedrockruntime.InvokeModelOutput{
		Body:        []byte(`{"usage":{"input_tokens":1,"output_tokens":2}}`),
		ContentType: aws.String("application/json"),
	}
	awsmiddleware.SetRequestIDMetadata(&out.ResultMetadata, "req-abc")
	client := &fakeBedrock{output: out}

	resp, err := NewBedrockInvoker(client).InvokeModel(context.Background(), &Request{
		ModelID: testModel,
		Body:    []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("InvokeModel() error = %v", err)
	}

	if aws.ToString(client.input.ModelId) != testModel {
		t.Errorf("model id = %q", aws.ToString(client.input.ModelId))
	}
	if aws.ToString(client.input.ContentType) != DefaultContentType || aws.ToString(client.input.Accept) != DefaultContentType {
		t.Error("expected JSON content type and accept defaults")
	}
	if resp.ContentType != "application/json" {
		t.Errorf("content type = %q", resp.ContentType)
	}
	if resp.Header("x-amzn-requestid") != "req-abc" {
		t.Errorf("request id metadata = %v", resp.Metadata)
	}
	if u, ok := ExtractUsage(resp); !ok || u.OutputTokens != 2 {
		t.Errorf("usage = %+v, %v", u, ok)
	}
}

func TestBedrockInvoker_ErrorPassthrough(t *testing.T) {
	want := &smithy.GenericAPIError{Code: "ValidationException", Message: "bad model"}
	client := &fakeBedrock{err: want}

	_, err := NewBedrockInvoker(client).InvokeModel(context.Background(), &Request{ModelID: "x"})
	if err != want {
		t.Fatalf("expected the client error unchanged, got %v", err)
	}
}

func TestLiftHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("x-amzn-bedrock-input-token-count", "42")
	h.Set("X-Amzn-Bedrock-Output-Token-Count", "7")
	h.Set("Content-Length", "99")

	dst := map[string]string{}
	liftHeaders(dst, h)

	if dst[HeaderInputTokenCount] != "42" || dst[HeaderOutputTokenCount] != "7" {
		t.Errorf("lifted = %v", dst)
	}
	if _, ok := dst["Content-Length"]; ok {
		t.Error("unrelated headers should not be lifted")
	}
}

func TestErrorCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}
	wrapped := fmt.Errorf("invoke: %w", apiErr)

	if got := ErrorCode(wrapped); got != "AccessDeniedException" {
		t.Errorf("ErrorCode() = %q", got)
	}
	if got := ErrorMessage(wrapped); got != "denied" {
		t.Errorf("ErrorMessage() = %q", got)
	}
	if got := ErrorCode(errors.New("plain")); got != UnknownErrorCode {
		t.Errorf("ErrorCode(plain) = %q", got)
	}
	if got := ErrorMessage(errors.New("plain")); got != "plain" {
		t.Errorf("ErrorMessage(plain) = %q", got)
	}
}
