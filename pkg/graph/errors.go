package graph

import "errors"

var (
	// ErrInvalidDepth means the requested depth is not a positive integer.
	ErrInvalidDepth = errors.New("depth must be a positive integer")
	// ErrNoResults means every news source came back empty for the topic.
	ErrNoResults = errors.New("no articles found")
	// ErrMissingAPIKey means neither the request nor the configuration
	// supplied a credential for the extraction model.
	ErrMissingAPIKey = errors.New("no api key provided")
	// ErrBadExtraction means the model answer could not be parsed as a graph.
	ErrBadExtraction = errors.New("failed to parse extracted graph")
)
