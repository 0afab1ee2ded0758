package main

import (
	"bytes"
	"html/template"

	"github.com/go-mail/mail/v2"
)

const welcomeTemplate = `
{{define "subject"}}Welcome to Task Tracker{{end}}

{{define "plainBody"}}
Hi,

Thanks for signing up for Task Tracker. Your account is ready; log in with
your email address to start creating tasks.

The Task Tracker Team
{{end}}

{{define "htmlBody"}}
<!doctype html>
<html>
<body>
<p>Hi,</p>
<p>Thanks for signing up for Task Tracker. Your account is ready; log in with
your email address to start creating tasks.</p>
<p>The Task Tracker Team</p>
</body>
</html>
{{end}}
`

type mailer struct {
	dailer  *mail.Dialer
	sender  string
	welcome *template.Template
}

func newMailer(host string, port int, username string, password string, sender string) *mailer {
	dailer := mail.NewDialer(host, port, username, password)
	return &mailer{
		dailer:  dailer,
		sender:  sender,
		welcome: template.Must(template.New("welcome").Parse(welcomeTemplate)),
	}
}

func (m *mailer) sendWelcome(to string) error {
	return m.send(to, m.welcome, nil)
}

func (m *mailer) send(to string, tmpl *template.Template, data any) error {
	var subject bytes.Buffer
	err := tmpl.ExecuteTemplate(&subject, "subject", data)
	if err != nil {
		return err
	}
	var plainBody bytes.Buffer
	err = tmpl.ExecuteTemplate(&plainBody, "plainBody", data)
	if err != nil {
		return err
	}
	var htmlBody bytes.Buffer
	err = tmpl.ExecuteTemplate(&htmlBody, "htmlBody", data)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject.String())
	msg.SetBody("text/plain", plainBody.String())
	msg.AddAlternative("text/html", htmlBody.String())

	for i := 0; i < 3; i++ {
		err = m.dailer.DialAndSend(msg)
		if err == nil {
			break
		}
	}
	return err
}
