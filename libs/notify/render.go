package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

type rendered struct {
	subject *template.Template
	body    *template.Template
}

func when(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, 2 January 2006 at 15:04 MST")
}

func recipientName(m Message) string {
	if m.RecipientName != "" {
		return m.RecipientName
	}
	return "there"
}

var templates = map[Kind]rendered{
	KindReminder24h: mustTemplates(
		`Reminder: {{.Msg.Appointment.TypeName}} tomorrow`,
		`Hello {{name .Msg}},

This is a reminder of your {{.Msg.Appointment.TypeName}} appointment on {{when .Msg.Appointment.ScheduledAt .Loc}}.{{template "details" .}}`),
	KindReminder2h: mustTemplates(
		`Reminder: {{.Msg.Appointment.TypeName}} in two hours`,
		`Hello {{name .Msg}},

Your {{.Msg.Appointment.TypeName}} appointment starts in about two hours, on {{when .Msg.Appointment.ScheduledAt .Loc}}.{{template "details" .}}`),
	KindReminder1h: mustTemplates(
		`Reminder: {{.Msg.Appointment.TypeName}} within the hour`,
		`Hello {{name .Msg}},

Your {{.Msg.Appointment.TypeName}} appointment starts soon, on {{when .Msg.Appointment.ScheduledAt .Loc}}.{{template "details" .}}`),
	KindBookingRequested: mustTemplates(
		`We received your booking request`,
		`Hello {{name .Msg}},

Your request for {{.Msg.Appointment.TypeName}} on {{when .Msg.Appointment.ScheduledAt .Loc}} is awaiting confirmation. We will email you once it is confirmed.{{template "details" .}}`),
	KindBookingConfirmed: mustTemplates(
		`Your appointment is confirmed`,
		`Hello {{name .Msg}},

Your {{.Msg.Appointment.TypeName}} appointment on {{when .Msg.Appointment.ScheduledAt .Loc}} is confirmed.{{template "details" .}}`),
	KindBookingCancelled: mustTemplates(
		`Your appointment was cancelled`,
		`Hello {{name .Msg}},

Your {{.Msg.Appointment.TypeName}} appointment on {{when .Msg.Appointment.ScheduledAt .Loc}} has been cancelled.{{with .Msg.Appointment.Reason}}
Reason: {{.}}{{end}}`),
}

const detailsTemplate = `{{define "details"}}{{with .Msg.Appointment.StaffName}}
With: {{.}}{{end}}{{with .Msg.Appointment.LocationAddress}}
Where: {{.}}{{end}}{{with .Msg.Appointment.ManagementToken}}

Your booking reference is {{.}}. Keep it to check or cancel this booking.{{end}}{{end}}`

func mustTemplates(subject, body string) rendered {
	fm := template.FuncMap{"when": when, "name": recipientName}
	return rendered{
		subject: template.Must(template.New("subject").Funcs(fm).Parse(subject)),
		body:    template.Must(template.Must(template.New("body").Funcs(fm).Parse(body)).Parse(detailsTemplate)),
	}
}

// Render produces the subject and plain-text body of msg, formatting times
// in loc.
func Render(msg Message, loc *time.Location) (string, string, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("notify: no template for kind %q", msg.Kind)
	}
	if loc == nil {
		loc = time.UTC
	}
	data := struct {
		Msg Message
		Loc *time.Location
	}{msg, loc}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}
