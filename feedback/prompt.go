package feedback

import (
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jamesainslie/go-writecoach/scoring"
)

const defaultSystem = `You are an experienced and encouraging English writing tutor. You give ` +
	`students specific, actionable feedback grounded in their own writing.`

const defaultTemplate = `A student wrote the essay below. An automated grader scored it on six ` +
	`analytic rubric items, each from {{.Min}} to {{.Max}} (higher is better).

### Essay

{{.Essay}}

### Scores
{{range .Items}}
- {{.Name}}: {{.Score}}{{end}}

### Task

Write personalised feedback addressed to the student. Start with what the essay does well.
Then focus on the two lowest-scoring items, quoting short passages from the essay and showing
how to improve them. Finish with three concrete next steps. Use markdown headings and keep
the whole response under 400 words.
`

// Prompt renders the instructions sent to model-backed providers.
type Prompt struct {
	system string
	user   *template.Template
	scale  scoring.Scale
}

// DefaultPrompt returns the built-in tutor prompt for scores on scale.
func DefaultPrompt(scale scoring.Scale) *Prompt {
	return &Prompt{
		system: defaultSystem,
		user:   template.Must(template.New("feedback").Parse(defaultTemplate)),
		scale:  scale,
	}
}

// NewPrompt parses a custom user template. The template sees .Essay, .Min,
// .Max and .Items, each item having .Name and .Score.
func NewPrompt(system, userTemplate string, scale scoring.Scale) (*Prompt, error) {
	tmpl, err := template.New("feedback").Option("missingkey=error").Parse(userTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing feedback template: %w", err)
	}
	if strings.TrimSpace(system) == "" {
		system = defaultSystem
	}
	return &Prompt{system: system, user: tmpl, scale: scale}, nil
}

type promptItem struct {
	Name  string
	Score string
}

// Render returns the system and user messages for essay.
func (p *Prompt) Render(essay string, scores scoring.Scores) (string, string, error) {
	data := struct {
		Essay    string
		Min, Max string
		Items    []promptItem
	}{
		Essay: strings.TrimSpace(essay),
		Min:   fmt.Sprintf("%.1f", p.scale.Min),
		Max:   fmt.Sprintf("%.1f", p.scale.Max),
	}
	title := cases.Title(language.English)
	for _, it := range scoring.Items {
		data.Items = append(data.Items, promptItem{
			Name:  title.String(it.String()),
			Score: p.scale.Format(scores.Get(it)),
		})
	}

	var b strings.Builder
	if err := p.user.Execute(&b, data); err != nil {
		return "", "", err
	}
	return p.system, b.String(), nil
}
