// Package classifier infers a project and topic labels from conversation
// text and metadata. Everything here is a pure function over its inputs.
package classifier

import (
	"sort"
	"strings"
)

// topicKeywords maps a topic label to the keywords that vote for it. A topic
// needs at least two distinct keyword hits to be assigned.
var topicKeywords = map[string][]string{
	"Docker-First Development": {"docker", "docker-compose", "container", "workspace", "volume"},
	"Turborepo Monorepo":       {"turborepo", "pnpm", "monorepo", "workspace", "package.json"},
	"Supabase Self-Host":       {"supabase", "realtime", "edge function", "kong", "auth"},
	"Multi-Tenancy":            {"multi-tenant", "tenant", "organization_id", "row level security", "rls"},
	"Testing Strategy":         {"unit test", "integration test", "playwright", "vitest", "coverage"},
	"Performance Optimization": {"performance", "optimization", "cache", "latency", "profiling"},
	"API Design":               {"api", "endpoint", "openapi", "fastapi", "rest"},
	"Security":                 {"authentication", "authorization", "jwt", "encryption", "secret"},
}

// projectKeywords maps known project names to text that identifies them.
var projectKeywords = map[string][]string{
	"recollect": {"recollect", "vector memory", "conversation archive"},
}

// projectHintKeys are scanned, in order, for an explicit project identifier.
var projectHintKeys = []string{"project", "workspace", "project_path", "repo", "repository", "slug"}

const fallbackTopic = "General"

// minTopicHits is the number of distinct keywords that must appear before a
// topic is assigned.
const minTopicHits = 2

// InferProject resolves a project name. An explicit value always wins; then
// hint keys in metadata and content, in that order; then keyword matching
// over the flattened text. Returns "" when nothing matches.
func InferProject(metadata, content map[string]interface{}, text, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}

	for _, source := range []map[string]interface{}{metadata, content} {
		if source == nil {
			continue
		}
		for _, key := range projectHintKeys {
			if value, ok := source[key].(string); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}

	lower := strings.ToLower(text)
	for project, keywords := range projectKeywords {
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				return project
			}
		}
	}
	return ""
}

// InferTopics returns caller-supplied topics unchanged when present,
// otherwise counts distinct keyword hits per topic over the lowercased text.
// When nothing reaches the hit threshold the fallback topic is returned so
// every derived record carries at least one label.
func InferTopics(text string, existing []string) []string {
	filtered := existing[:0:0]
	for _, topic := range existing {
		if strings.TrimSpace(topic) != "" {
			filtered = append(filtered, topic)
		}
	}
	if len(filtered) > 0 {
		return filtered
	}

	lower := strings.ToLower(text)
	var detected []string
	for topic, keywords := range topicKeywords {
		hits := 0
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				hits++
			}
		}
		if hits >= minTopicHits {
			detected = append(detected, topic)
		}
	}

	if len(detected) == 0 {
		return []string{fallbackTopic}
	}
	// Keep output deterministic despite map iteration order.
	sort.Strings(detected)
	return detected
}
