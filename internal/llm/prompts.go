package llm

import "fmt"

// systemPrompt builds the summarization instruction for the given kind,
// length, and optional focus query.
func systemPrompt(kind, length, query string) string {
	prompt := fmt.Sprintf("You are a highly skilled summarization AI. Your task is to provide a %s summary.", length)

	switch kind {
	case "abstractive":
		prompt += " The summary should be abstractive, meaning you should rephrase and synthesize the information."
	case "extractive":
		prompt += " The summary should be extractive, meaning you should select key sentences directly from the text."
	case "query_focused":
		prompt += fmt.Sprintf(" The summary should be focused on answering the following query: '%s'.", query)
	}

	prompt += " Ensure the summary is concise, accurate, and captures the main points."

	switch length {
	case "short":
		prompt += " Keep the summary very brief, around 1-2 sentences."
	case "medium":
		prompt += " Aim for a summary of 3-5 sentences."
	case "detailed":
		prompt += " Provide a comprehensive summary, covering all important aspects, around 5-10 sentences."
	}

	return prompt
}

// userPrompt wraps the text to be summarized.
func userPrompt(text string) string {
	return "Please summarize the following text:\n\n" + text
}
