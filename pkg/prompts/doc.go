/*
Package prompts provides the prompt library for answer generation and
query analysis over the knowledge graph.

Prompts are organized as versioned implementations behind a Library
interface so callers never hold raw template strings:

	library := prompts.NewLibrary()

	context := map[string]interface{}{
		"passages": passages,
		"question": question,
	}

	messages, err := library.Answer().Grounded().Call(context)
	if err != nil {
		// handle error
	}
*/
package prompts
