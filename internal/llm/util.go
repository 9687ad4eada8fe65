package llm

import (
	"fmt"
	"strings"
)

// refusalPhrases open an answer in which the model declined the task.
var refusalPhrases = []string{
	"i am unable to",
	"i'm unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"i'm sorry",
	"as a large language model",
	"as an ai",
}

// answerMarkers show the model produced the requested structure, even when
// a refusal phrase appears inside it.
var answerMarkers = []string{
	"feature:",
	"scenario:",
	"i want",
	"tables:",
}

// CheckRefusal returns an error when the text opens with a refusal phrase
// and carries none of the answer markers. Phrases inside a story, such as
// "Then I am unable to access the dashboard", are not refusals.
func CheckRefusal(text string) error {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, marker := range answerMarkers {
		if strings.Contains(lower, marker) {
			return nil
		}
	}
	for _, phrase := range refusalPhrases {
		if strings.HasPrefix(lower, phrase) {
			return fmt.Errorf("%w: response indicates refusal (%q)", ErrModelCall, phrase)
		}
	}
	return nil
}

// StripFences removes a leading ``` fence line, with or without a language
// tag, and a trailing ``` fence line. Text between the fences, and text
// without fences, is returned unchanged.
func StripFences(text string) string {
	if !strings.HasPrefix(strings.TrimSpace(text), "```") {
		return text
	}
	body := strings.TrimLeft(text, " \t\r\n")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return strings.TrimSpace(strings.Trim(body, "`"))
	}
	body = body[nl+1:]

	end := strings.TrimRight(body, " \t\r\n")
	if strings.HasSuffix(end, "```") {
		end = strings.TrimSuffix(end, "```")
		if i := strings.LastIndexByte(end, '\n'); i >= 0 && strings.TrimSpace(end[i+1:]) == "" {
			end = end[:i]
		}
		return end
	}
	return body
}
