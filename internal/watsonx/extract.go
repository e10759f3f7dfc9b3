package watsonx

// Candidate is one plausible answer text found in a response envelope. Path
// records where it came from, for diagnostics only; selection is path-agnostic.
type Candidate struct {
	Path string
	Text string
}

// Extract probes a response envelope for answer-text candidates. The remote
// agent is not shape-stable: a real answer may appear in any of several
// structurally distinct locations, so every known shape family is checked in a
// fixed priority order and every match is collected. Malformed sub-structures
// are skipped rather than failing; an envelope with no matches yields nil.
//
// Probe order:
//  1. result.data.message.step_history: assistant tool_response details
//  2. messages: assistant-role entries
//  3. result.data.message.content: response_type=="text" blocks
//  4. output.text (legacy)
//  5. result.output (legacy, string)
func Extract(envelope map[string]interface{}) []Candidate {
	var candidates []Candidate
	candidates = append(candidates, extractStepHistory(envelope)...)
	candidates = append(candidates, extractMessages(envelope)...)
	candidates = append(candidates, extractContentBlocks(envelope)...)
	candidates = append(candidates, extractLegacyOutput(envelope)...)
	candidates = append(candidates, extractLegacyResult(envelope)...)
	return candidates
}

func extractStepHistory(envelope map[string]interface{}) []Candidate {
	message := dig(envelope, "result", "data", "message")
	steps, ok := message["step_history"].([]interface{})
	if !ok {
		return nil
	}
	var out []Candidate
	for _, raw := range steps {
		step, ok := raw.(map[string]interface{})
		if !ok || str(step["role"]) != "assistant" {
			continue
		}
		details, ok := step["step_details"].([]interface{})
		if !ok {
			continue
		}
		for _, rawDetail := range details {
			detail, ok := rawDetail.(map[string]interface{})
			if !ok || str(detail["type"]) != "tool_response" {
				continue
			}
			out = append(out, extractToolResponse(detail["response"])...)
		}
	}
	return out
}

func extractToolResponse(raw interface{}) []Candidate {
	if text, ok := raw.(string); ok && text != "" {
		return []Candidate{{Path: "step_history.tool_response", Text: text}}
	}
	resp, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	var out []Candidate
	if text := str(resp["text"]); text != "" {
		out = append(out, Candidate{Path: "step_history.tool_response.text", Text: text})
	}
	switch msg := resp["message"].(type) {
	case string:
		if msg != "" {
			out = append(out, Candidate{Path: "step_history.tool_response.message", Text: msg})
		}
	case map[string]interface{}:
		if text := str(msg["text"]); text != "" {
			out = append(out, Candidate{Path: "step_history.tool_response.message.text", Text: text})
		}
	}
	switch content := resp["content"].(type) {
	case string:
		if content != "" {
			out = append(out, Candidate{Path: "step_history.tool_response.content", Text: content})
		}
	case []interface{}:
		for _, rawItem := range content {
			item, ok := rawItem.(map[string]interface{})
			if !ok || str(item["type"]) != "text" {
				continue
			}
			if text := str(item["text"]); text != "" {
				out = append(out, Candidate{Path: "step_history.tool_response.content[]", Text: text})
			}
		}
	}
	return out
}

func extractMessages(envelope map[string]interface{}) []Candidate {
	messages, ok := envelope["messages"].([]interface{})
	if !ok {
		return nil
	}
	var out []Candidate
	for _, raw := range messages {
		msg, ok := raw.(map[string]interface{})
		if !ok || str(msg["role"]) != "assistant" {
			continue
		}
		if content := str(msg["content"]); content != "" {
			out = append(out, Candidate{Path: "messages", Text: content})
		}
	}
	return out
}

func extractContentBlocks(envelope map[string]interface{}) []Candidate {
	message := dig(envelope, "result", "data", "message")
	blocks, ok := message["content"].([]interface{})
	if !ok {
		return nil
	}
	var out []Candidate
	for _, raw := range blocks {
		block, ok := raw.(map[string]interface{})
		if !ok || str(block["response_type"]) != "text" {
			continue
		}
		if text := str(block["text"]); text != "" {
			out = append(out, Candidate{Path: "result.data.message.content", Text: text})
		}
	}
	return out
}

func extractLegacyOutput(envelope map[string]interface{}) []Candidate {
	output, ok := envelope["output"].(map[string]interface{})
	if !ok {
		return nil
	}
	if text := str(output["text"]); text != "" {
		return []Candidate{{Path: "output.text", Text: text}}
	}
	return nil
}

func extractLegacyResult(envelope map[string]interface{}) []Candidate {
	result, ok := envelope["result"].(map[string]interface{})
	if !ok {
		return nil
	}
	if text := str(result["output"]); text != "" {
		return []Candidate{{Path: "result.output", Text: text}}
	}
	return nil
}

// dig walks nested map keys, returning an empty map when any level is missing
// or has the wrong type.
func dig(m map[string]interface{}, keys ...string) map[string]interface{} {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]interface{})
		if !ok {
			return map[string]interface{}{}
		}
		cur = next
	}
	return cur
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
