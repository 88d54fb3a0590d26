// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

const PromptExtension = "tmpl"

// Prompts renders the embedded prompt templates by name.
type Prompts struct {
	templates *template.Template
}

func NewPrompts(promptsFolder embed.FS) (*Prompts, error) {
	templates, err := template.ParseFS(promptsFolder, "*."+PromptExtension)
	if err != nil {
		return nil, fmt.Errorf("unable to parse prompt templates: %w", err)
	}

	return &Prompts{
		templates: templates,
	}, nil
}

// Format renders the named template with data. The name is the filename
// without the .tmpl extension.
func (p *Prompts) Format(templateName string, data any) (string, error) {
	var out strings.Builder
	if err := p.templates.ExecuteTemplate(&out, templateName+"."+PromptExtension, data); err != nil {
		return "", fmt.Errorf("unable to render prompt %s: %w", templateName, err)
	}

	return strings.TrimSpace(out.String()), nil
}
