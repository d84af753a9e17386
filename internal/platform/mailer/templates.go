package mailer

import (
	"bytes"
	"context"
	"html/template"

	"github.com/rs/zerolog/log"
)

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(`<p>Welcome to LawDesk, {{.Name}}.</p>
<p>Your firm <strong>{{.Org}}</strong> is on a {{.TrialDays}}-day trial of the {{.Plan}} plan.</p>`))

	trialExpiredTmpl = template.Must(template.New("trial_expired").Parse(`<p>The trial for <strong>{{.Org}}</strong> has ended.</p>
<p>Your firm is now on the basic plan. Add a payment method to restore {{.Plan}} features.</p>`))
)

type WelcomeData struct {
	Name      string
	Org       string
	Plan      string
	TrialDays int
}

type TrialExpiredData struct {
	Org  string
	Plan string
}

func render(t *template.Template, data interface{}) (string, bool) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		log.Error().Err(err).Str("template", t.Name()).Msg("mailer: render failed")
		return "", false
	}
	return buf.String(), true
}

func SendWelcome(ctx context.Context, s Sender, to string, data WelcomeData) bool {
	html, ok := render(welcomeTmpl, data)
	if !ok {
		return false
	}
	return s.Send(ctx, to, "Welcome to LawDesk", html)
}

func SendTrialExpired(ctx context.Context, s Sender, to string, data TrialExpiredData) bool {
	html, ok := render(trialExpiredTmpl, data)
	if !ok {
		return false
	}
	return s.Send(ctx, to, "Your LawDesk trial has ended", html)
}
