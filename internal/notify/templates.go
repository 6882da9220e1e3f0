package notify

import (
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

type Type string

const (
	TypeWelcome           Type = "WELCOME"
	TypeCertificateIssued Type = "CERTIFICATE_ISSUED"
	TypeExpiryReminder    Type = "EXPIRY_REMINDER"
	TypeIncidentAlert     Type = "INCIDENT_ALERT"
	TypeContact           Type = "CONTACT"
)

type template struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func mustTemplate(name, subject, text, html string) template {
	return template{
		subject: texttemplate.Must(texttemplate.New(name + ".subject").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(name + ".text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name + ".html").Parse(html)),
	}
}

var templates = map[Type]template{
	TypeWelcome: mustTemplate("welcome",
		`Welcome to {{.OrgName}} safety training`,
		`Hi {{.Name}},

An account has been created for you.
Login: {{.LoginURL}}
Email: {{.Email}}
{{if .TempPassword}}Temporary password: {{.TempPassword}}
Please change it after signing in.
{{end}}`,
		`<p>Hi {{.Name}},</p><p>An account has been created for you.</p>
<p><a href="{{.LoginURL}}">Sign in</a> as <b>{{.Email}}</b>.</p>
{{if .TempPassword}}<p>Temporary password: <code>{{.TempPassword}}</code><br>Please change it after signing in.</p>{{end}}`),

	TypeCertificateIssued: mustTemplate("certificate",
		`Your certificate for {{.CourseTitle}}`,
		`Hi {{.Name}},

Congratulations on completing {{.CourseTitle}}.
Certificate: {{.Serial}}
Valid until: {{.ExpiresOn}}
Verify: {{.VerifyURL}}
`,
		`<p>Hi {{.Name}},</p><p>Congratulations on completing <b>{{.CourseTitle}}</b>.</p>
<p>Certificate <b>{{.Serial}}</b> is valid until {{.ExpiresOn}}.</p>
<p><a href="{{.VerifyURL}}">Verify this certificate</a></p>`),

	TypeExpiryReminder: mustTemplate("expiry",
		`{{.CourseTitle}} certificate expires in {{.Days}} day{{if ne .Days 1}}s{{end}}`,
		`Hi {{.Name}},

Your {{.CourseTitle}} certificate ({{.Serial}}) expires on {{.ExpiresOn}}.
Please complete the refresher training before then.
{{.LoginURL}}
`,
		`<p>Hi {{.Name}},</p><p>Your <b>{{.CourseTitle}}</b> certificate ({{.Serial}}) expires on <b>{{.ExpiresOn}}</b>.</p>
<p>Please complete the refresher training before then: <a href="{{.LoginURL}}">open training</a></p>`),

	TypeIncidentAlert: mustTemplate("incident",
		`[{{.Severity}}] Incident reported: {{.Title}}`,
		`A {{.Severity}} incident was reported{{if .Location}} at {{.Location}}{{end}}.

{{.Title}}
{{.Description}}

Root cause: {{.RootCause}}
`,
		`<p>A <b>{{.Severity}}</b> incident was reported{{if .Location}} at {{.Location}}{{end}}.</p>
<h3>{{.Title}}</h3><p>{{.Description}}</p><p>Root cause: {{.RootCause}}</p>`),

	TypeContact: mustTemplate("contact",
		`Contact request from {{.Name}}{{if .Company}} ({{.Company}}){{end}}`,
		`From: {{.Name}} <{{.Email}}>
Company: {{.Company}}

{{.Message}}
`,
		`<p>From: {{.Name}} &lt;{{.Email}}&gt;<br>Company: {{.Company}}</p><p>{{.Message}}</p>`),
}

// Render fills the subject, text and HTML templates for typ.
func Render(typ Type, data any) (subject, text, html string, err error) {
	t, ok := templates[typ]
	if !ok {
		return "", "", "", ErrUnknownType
	}
	var sb, tb, hb strings.Builder
	if err = t.subject.Execute(&sb, data); err != nil {
		return
	}
	if err = t.text.Execute(&tb, data); err != nil {
		return
	}
	if err = t.html.Execute(&hb, data); err != nil {
		return
	}
	return strings.TrimSpace(sb.String()), tb.String(), hb.String(), nil
}
