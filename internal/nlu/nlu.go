// Package nlu extracts entities, keywords, and coarse issue patterns from log
// and analysis text. Extraction is best-effort: a degraded or empty result is
// acceptable and never fails a job.
package nlu

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

// Entity type labels.
const (
	EntitySystem      = "SYSTEM"
	EntityErrorType   = "ERROR_TYPE"
	EntityEnvironment = "ENVIRONMENT"
	EntityIPAddress   = "IP_ADDRESS"
	EntityPath        = "PATH"
)

const maxKeywords = 20

var systemTerms = []string{
	"database", "redis", "kafka", "postgres", "mysql", "nginx", "kubernetes",
	"api", "cache", "queue", "disk", "network", "dns",
}

var errorTypeTerms = []string{
	"connection timeout", "out of memory", "connection refused", "rate limit",
	"deadlock", "stack overflow", "segmentation fault", "null pointer",
}

var environmentTerms = []string{"production", "staging", "development", "test"}

var (
	ipPattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	pathPattern = regexp.MustCompile(`(?:/[A-Za-z0-9._-]+){2,}`)
	wordPattern = regexp.MustCompile(`[a-zA-Z]{3,}`)
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "was": true, "are": true, "not": true,
	"has": true, "have": true, "been": true, "were": true, "will": true,
	"its": true, "into": true, "during": true, "while": true, "when": true,
}

// Extract returns a mapping of entity type to the distinct values found in
// the text. An empty mapping means nothing was recognized, not a failure.
func Extract(text string) map[string][]string {
	entities := make(map[string][]string)
	lower := strings.ToLower(text)

	addTermMatches(entities, EntityErrorType, lower, errorTypeTerms)
	addTermMatches(entities, EntitySystem, lower, systemTerms)
	addTermMatches(entities, EntityEnvironment, lower, environmentTerms)

	if ips := dedupe(ipPattern.FindAllString(text, -1)); len(ips) > 0 {
		entities[EntityIPAddress] = ips
	}
	if paths := dedupe(pathPattern.FindAllString(text, -1)); len(paths) > 0 {
		entities[EntityPath] = paths
	}
	return entities
}

// Keywords returns up to maxKeywords distinct lowercase terms, most frequent
// first, ignoring stopwords.
func Keywords(text string) []string {
	counts := make(map[string]int)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}

// Patterns classifies the text into coarse issue classes used to enrich the
// final analysis payload.
func Patterns(text string) []models.LogPattern {
	lower := strings.ToLower(text)
	var out []models.LogPattern

	if containsAny(lower, "database", "connection", "timeout", "pool") {
		out = append(out, models.LogPattern{
			Type:        "DATABASE_ISSUE",
			Confidence:  0.8,
			Description: "Database connectivity or performance issue detected",
		})
	}
	if containsAny(lower, "memory", "heap", "oom", "garbage") {
		out = append(out, models.LogPattern{
			Type:        "MEMORY_ISSUE",
			Confidence:  0.7,
			Description: "Memory-related issue detected",
		})
	}
	if containsAny(lower, "api", "rate", "limit", "throttle") {
		out = append(out, models.LogPattern{
			Type:        "API_ISSUE",
			Confidence:  0.75,
			Description: "API-related issue detected",
		})
	}
	if containsAny(lower, "slow", "performance", "latency", "response") {
		out = append(out, models.LogPattern{
			Type:        "PERFORMANCE_ISSUE",
			Confidence:  0.6,
			Description: "Performance degradation detected",
		})
	}
	return out
}

func addTermMatches(entities map[string][]string, label, lower string, terms []string) {
	var found []string
	for _, term := range terms {
		if strings.Contains(lower, term) {
			found = append(found, term)
		}
	}
	if len(found) > 0 {
		entities[label] = found
	}
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
