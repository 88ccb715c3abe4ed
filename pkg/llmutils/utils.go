package llmutils

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrFailedUnmarshalInput is returned when a capability input can not be decoded.
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input")

// CleanJSON returns JSON by trimming prefixes and postfixes,
// this is more useful than TrimBackticks,
// as LLM can reply like,
// `Here you go: {json}`
func CleanJSON(bs []byte) []byte {
	trimmedPrefix := trimPrefixBeforeJSON(bs)
	trimmedJSON := trimPostfixAfterJSON(trimmedPrefix)
	return trimmedJSON
}

// Removes any prefixes before the JSON (like "Sure, here you go:")
func trimPrefixBeforeJSON(bs []byte) []byte {
	startObject := bytes.IndexByte(bs, '{')
	startArray := bytes.IndexByte(bs, '[')

	var start int
	if startObject == -1 && startArray == -1 {
		return bs
	} else if startObject == -1 {
		start = startArray
	} else if startArray == -1 {
		start = startObject
	} else {
		start = min(startObject, startArray)
	}

	return bs[start:]
}

// Removes any postfixes after the JSON
func trimPostfixAfterJSON(bs []byte) []byte {
	endObject := bytes.LastIndexByte(bs, '}')
	endArray := bytes.LastIndexByte(bs, ']')

	var end int
	if endObject == -1 && endArray == -1 {
		return bs
	} else if endObject == -1 {
		end = endArray
	} else if endArray == -1 {
		end = endObject
	} else {
		end = max(endObject, endArray)
	}

	return bs[:end+1]
}

// IsJSON returns true if the trimmed input looks like a JSON object or array.
func IsJSON(input string) bool {
	s := strings.TrimSpace(input)
	return len(s) > 1 &&
		((s[0] == '{' && s[len(s)-1] == '}') || (s[0] == '[' && s[len(s)-1] == ']'))
}

// UnmarshalInput decodes a capability input produced by a model.
// The input may be wrapped in backticks or surrounded by prose,
// and may contain the usual LLM JSON mistakes.
func UnmarshalInput(input string, v any) error {
	data := CleanJSON(BytesTrimBackticks([]byte(input)))
	if err := ljson.Unmarshal(data, v); err != nil {
		return errors.WithStack(ErrFailedUnmarshalInput)
	}
	return nil
}

// TrimBackticks removes ```json or ```
func TrimBackticks(text string) string {
	return string(BytesTrimBackticks([]byte(text)))
}

var backtick = []byte("```")

// BytesTrimBackticks removes ```json or ```
func BytesTrimBackticks(bs []byte) []byte {
	size := len(bs)
	startIndex := bytes.Index(bs, backtick)
	if startIndex == -1 {
		return bs
	}
	startIndex += len(backtick)

	for i := startIndex; i < size && bs[i] != '{' && bs[i] != '['; i++ {
		if bs[i] == '\n' {
			startIndex = i + 1
			break
		}
	}

	contentAfterStart := bs[startIndex:]

	endIndex := bytes.LastIndex(contentAfterStart, backtick)
	if endIndex == -1 {
		return contentAfterStart
	}

	return bytes.TrimSpace(contentAfterStart[:endIndex])
}

func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

func ToYAML(val any) string {
	js, _ := yaml.Marshal(val)
	return string(js)
}

func BackticksJSON(js string) string {
	return "\n```json\n" + strings.TrimSpace(js) + "\n```\n"
}

func BackticksYAML(js string) string {
	return "\n```yaml\n" + strings.TrimSpace(js) + "\n```\n"
}

type Stringer interface {
	String() string
}

// Stringify returns a text representation of the value,
// suitable to be returned to a model as a tool result.
func Stringify(s any) string {
	if v, ok := s.(Stringer); ok {
		return v.String()
	}
	if v, ok := s.(string); ok {
		return v
	}
	js, _ := json.MarshalIndent(s, "", "\t")
	return string(js)
}

// EnsureEndsWithNewline ensures the message ends with a newline,
// it also removes any extra leading and trailing spaces.
func EnsureEndsWithNewline(s string) string {
	s = strings.TrimSpace(s)
	c := len(s)
	if c == 0 {
		return s
	}
	if s[c-1] != '\n' {
		return s + "\n"
	}
	return s
}

// OneLine collapses the text into a single line,
// each line is terminated with a period.
func OneLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var parts []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasSuffix(line, ".") {
			line += "."
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

// Truncate returns the first n characters of the text.
func Truncate(text string, n int) string {
	if n < 0 {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
