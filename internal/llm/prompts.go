package llm

import (
	"fmt"
	"strings"
)

const extractionSystemPrompt = "You are an expert at analyzing story input and extracting structured information."

const extractionUserTemplate = `Analyze the following story input and extract entities and relationships. Return a JSON response with this exact structure:

{
    "entities": [
        {
            "id": "char_001",
            "type": "character",
            "subtype": "protagonist",
            "name": "Character Name",
            "description": "Brief description",
            "properties": {}
        }
    ],
    "relationships": [
        {
            "type": "visits",
            "subject": "char_001",
            "object": "loc_001",
            "location": null,
            "metadata": {}
        }
    ]
}

Entity types: character, location, item
Character subtypes: protagonist, antagonist, supporting, animal
Location subtypes: interior, exterior, magical, real
Item subtypes: magical, tool, treasure, everyday

Relationship types: visits, finds, creates, owns, meets, helps, fights

Story input: %q

Extract all mentioned characters, locations, items, and their relationships. Return only the JSON object.`

// ExtractionPrompt builds the entity/relationship extraction request for a
// user's story input.
func ExtractionPrompt(inputText string) Request {
	return Request{
		System: extractionSystemPrompt,
		User:   fmt.Sprintf(extractionUserTemplate, inputText),
	}
}

const candidateSystemPrompt = "You identify which known knowledge-graph labels are referenced in a piece of story text."

const candidateUserTemplate = `Below is a list of labels known to a story knowledge graph, followed by new story text.

Known labels:
%s

Story text: %q

Return a JSON array containing only the labels from the list above that are plausibly referenced in the story text. Do not invent labels that are not in the list. Return [] if none apply.`

// CandidatePrompt builds the request asking which known graph labels
// appear in the input text.
func CandidatePrompt(inputText string, labels []string) Request {
	lines := make([]string, 0, len(labels))
	for _, label := range labels {
		lines = append(lines, "- "+label)
	}
	return Request{
		System: candidateSystemPrompt,
		User:   fmt.Sprintf(candidateUserTemplate, strings.Join(lines, "\n"), inputText),
	}
}
