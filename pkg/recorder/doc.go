// Package recorder meters model invocations.
//
// A Recorder wraps an Invoker (normally a BedrockInvoker), times each call,
// extracts the token counts from the response, prices them with a
// pricing.Table and returns a usage.Record alongside the untouched
// response. Invocation errors are logged with their error code and
// returned to the caller as the same error value; no record is produced
// for a failed call.
//
// Token counts are looked up in this order:
//
//  1. the X-Amzn-Bedrock-Input-Token-Count / Output-Token-Count response
//     headers (Response.Metadata)
//  2. a top-level "usage" object in the JSON payload
//  3. a "usage" object under "ResponseMetadata" in the payload
//
// Both snake_case and camelCase field names are accepted. A response with
// no usage information is recorded with zero tokens and a warning.
package recorder
