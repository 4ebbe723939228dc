// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"text/template"
)

// extractionPromptTmpl is sent once per Markdown section.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`Extract the key claims from this document section. For each claim, provide:
1. A clear statement of the claim
2. Evidence supporting it (quote relevant phrases)
3. The section it appears in
4. A confidence score (0-1) based on how well-supported it is

Return as JSON:
{
    "claims": [
        {
            "id": "c1",
            "text": "claim statement",
            "evidence": ["quote 1", "quote 2"],
            "section": "introduction",
            "confidence": 0.9
        }
    ]
}

Document section:
{{.Section}}

Return ONLY the JSON.`))

func renderPrompt(section string) (string, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, struct{ Section string }{section}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
