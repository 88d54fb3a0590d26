// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// unmarshalCompletion decodes a model completion into v. Models sometimes
// wrap JSON in markdown fences or surround it with prose; strip both before
// decoding.
func unmarshalCompletion(completion string, v any) error {
	text := extractJSON(completion)
	if text == "" {
		return errors.New("completion contains no JSON")
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return errors.Wrap(err, "unmarshaling completion")
	}
	return nil
}

// extractJSON returns the JSON payload of a completion: fences removed, any
// leading or trailing prose cut at the outermost brace or bracket pair.
func extractJSON(completion string) string {
	text := strings.TrimSpace(completion)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if text[start] == '{' {
		end = strings.LastIndex(text, "}")
	} else {
		end = strings.LastIndex(text, "]")
	}
	if end <= start {
		return ""
	}
	return text[start : end+1]
}
