// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package operator

import (
	"bytes"
	"text/template"
)

// mergePromptTmpl asks the model to group semantically duplicate claims.
var mergePromptTmpl = template.Must(template.New("merge").Parse(`Analyze these claims and identify semantic duplicates: claims that state the same thing in different words.

Claims:
{{.Claims}}

Return JSON:
{
    "merges": [
        {
            "keep": "c1",
            "remove": ["c2"],
            "reason": "explanation"
        }
    ]
}

Only use claim ids from the list above. If no merges are needed return {"merges": []}.
Return ONLY the JSON.`))

// assumptionPromptTmpl asks the model for assumptions the claims rely on
// without stating them.
var assumptionPromptTmpl = template.Must(template.New("assumptions").Parse(`Identify implicit assumptions in these claims: statements the claims depend on but never make explicit.

Claims:
{{range .}}- [{{.ID}}] {{.Text}}
{{end}}
Return JSON:
{
    "assumptions": [
        {
            "text": "assumption",
            "related_claim_ids": ["c1"],
            "confidence": 0.8
        }
    ]
}

If none are found return {"assumptions": []}.
Return ONLY the JSON.`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
