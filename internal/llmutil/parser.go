// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse attempts to parse an LLM response string into a target Go
// type using generics. It tolerates the usual formatting noise: markdown code
// fences and conversational prose surrounding the JSON payload.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := response

	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	// 1. Handle markdown wrapping (most common case).
	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			jsonStringToParse = matches[1]
		}
	} else if (isObject || isArray) && (!strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[")) {
		// 2. Find the structure buried inside conversational text: first
		// opening bracket to last closing bracket.
		if extracted, ok := extractBracketed(response); ok {
			jsonStringToParse = extracted
		}
	}

	// 3. Unmarshal.
	var result T
	if err := json.Unmarshal([]byte(jsonStringToParse), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(jsonStringToParse, 500))
	}

	return &result, nil
}

// extractBracketed slices response from the first opening to the last closing
// bracket. When both shapes are present the one opening first wins, so a JSON
// array of objects is sliced as the array, not its first element.
func extractBracketed(response string) (string, bool) {
	firstObj := strings.Index(response, "{")
	firstArr := strings.Index(response, "[")

	if firstArr != -1 && (firstObj == -1 || firstArr < firstObj) {
		if lb := strings.LastIndex(response, "]"); lb > firstArr {
			return response[firstArr : lb+1], true
		}
	}
	if firstObj != -1 {
		if lb := strings.LastIndex(response, "}"); lb > firstObj {
			return response[firstObj : lb+1], true
		}
	}
	return "", false
}

// truncateString truncates a string to a maximum length for error messages.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
