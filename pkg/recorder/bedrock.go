package recorder

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// DefaultContentType is sent when a request does not set one.
const DefaultContentType = "application/json"

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockInvoker invokes models through Amazon Bedrock.
type BedrockInvoker struct {
	client BedrockAPI
}

// NewBedrockInvoker creates an invoker backed by client.
func NewBedrockInvoker(client BedrockAPI) *BedrockInvoker {
	return &BedrockInvoker{client: client}
}

// InvokeModel implements Invoker. Errors from the client are returned
// unchanged.
func (b *BedrockInvoker) InvokeModel(ctx context.Context, req *Request) (*Response, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	accept := req.Accept
	if accept == "" {
		accept = DefaultContentType
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		Body:        req.Body,
		ContentType: aws.String(contentType),
		Accept:      aws.String(accept),
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Body:        output.Body,
		ContentType: aws.ToString(output.ContentType),
		Metadata:    map[string]string{},
	}
	if raw, ok := awsmiddleware.GetRawResponse(output.ResultMetadata).(*smithyhttp.Response); ok && raw.Response != nil {
		liftHeaders(resp.Metadata, raw.Header)
	}
	if requestID, ok := awsmiddleware.GetRequestIDMetadata(output.ResultMetadata); ok {
		resp.Metadata["X-Amzn-Requestid"] = requestID
	}

	return resp, nil
}

// liftHeaders copies the token count headers into dst.
func liftHeaders(dst map[string]string, h http.Header) {
	for _, name := range []string{HeaderInputTokenCount, HeaderOutputTokenCount} {
		if v := h.Get(name); v != "" {
			dst[http.CanonicalHeaderKey(name)] = v
		}
	}
}

// UnknownErrorCode is reported for errors that carry no service error code.
const UnknownErrorCode = "Unknown"

// ErrorCode returns the service error code of err, or "Unknown".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		return apiErr.ErrorCode()
	}
	return UnknownErrorCode
}

// ErrorMessage returns the service error message of err, or err.Error().
func ErrorMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}
