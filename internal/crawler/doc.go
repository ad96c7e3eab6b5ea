// Package crawler defines the shared domain types, error taxonomy, and
// collaborator interfaces used by the degree-program indexer.
//
// The listing parser, detail extractor, orchestrator, index publishers, and
// HTTP API all exchange the values declared here. Concrete implementations
// live in sibling packages so the orchestrator can be exercised with fakes.
package crawler
