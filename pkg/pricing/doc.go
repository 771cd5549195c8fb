// Package pricing resolves per-model token prices and computes the estimated
// cost of a model invocation.
//
// Prices are expressed in USD per million tokens, separately for input and
// output tokens. A Table always has a default entry that is used when a model
// id is not registered, so every lookup resolves deterministically.
//
// Cost is computed as:
//
//	round((input_tokens/1e6)*input_price + (output_tokens/1e6)*output_price, 6)
//
// Tables are safe for concurrent use. Prices can be registered one at a time,
// replaced wholesale from a pricing file, and hot-reloaded with a Watcher.
package pricing
