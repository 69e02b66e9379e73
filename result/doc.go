// Package result defines the uniform envelope returned at the orchestrator
// boundary: a success flag with data, or a classified error, plus request
// metadata.
package result
