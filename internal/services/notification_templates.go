package services

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/festpass/registration-backend/internal/models"
)

// EmailMessage is a rendered notification ready for the relay
type EmailMessage struct {
	To       string
	Subject  string
	HTMLBody string
}

// notificationView is the flattened data every template renders against.
// Missing data keys render as empty strings.
type notificationView struct {
	FestName         string
	Name             string
	EventTitle       string
	TeamName         string
	PaymentStatus    string
	PaymentID        string
	OrderID          string
	RegistrationCode string
	Subject          string
	Message          string
}

type notificationTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

const emailLayoutHead = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#222;">`
const emailLayoutFoot = `<p style="color:#888;font-size:12px;">This is an automated message from {{.FestName}}. Please do not reply.</p></body></html>`

var notificationTemplateSources = map[models.NotificationType][2]string{
	models.NotificationRegistrationConfirmation: {
		`{{.FestName}}: registration confirmed for {{.EventTitle}}`,
		`<h2>You're in, {{.Name}}!</h2>
<p>Your registration for <strong>{{.EventTitle}}</strong> is confirmed.</p>
{{if .TeamName}}<p>Team: {{.TeamName}}</p>{{end}}
{{if .PaymentID}}<p>Payment reference: {{.PaymentID}}</p>{{end}}`,
	},
	models.NotificationPaymentStatusUpdate: {
		`{{.FestName}}: payment {{.PaymentStatus}}`,
		`<h2>Hello {{.Name}},</h2>
<p>The status of your payment{{if .OrderID}} for order {{.OrderID}}{{end}} is now <strong>{{.PaymentStatus}}</strong>.</p>
{{if .Message}}<p>{{.Message}}</p>{{end}}`,
	},
	models.NotificationFestPaymentReceived: {
		`{{.FestName}}: payment received, approval pending`,
		`<h2>Thanks, {{.Name}}!</h2>
<p>We have received your fest registration payment{{if .PaymentID}} (reference {{.PaymentID}}){{end}}.</p>
<p>Our team will verify your details and email your registration code once approved.</p>`,
	},
	models.NotificationFestCodeApproved: {
		`{{.FestName}}: your registration code {{.RegistrationCode}}`,
		`<h2>Welcome aboard, {{.Name}}!</h2>
<p>Your fest registration has been approved.</p>
<p>Your registration code is <strong style="font-size:20px;">{{.RegistrationCode}}</strong>. Show it at the help desk to collect your pass.</p>`,
	},
	models.NotificationGeneric: {
		`{{if .Subject}}{{.Subject}}{{else}}{{.FestName}} update{{end}}`,
		`{{if .Name}}<h2>Hello {{.Name}},</h2>{{end}}
<p>{{.Message}}</p>`,
	},
}

// NotificationRenderer renders subject and body for each notification type
type NotificationRenderer struct {
	festName  string
	templates map[models.NotificationType]notificationTemplate
}

// NewNotificationRenderer parses every template up front so a bad template fails at startup
func NewNotificationRenderer(festName string) (*NotificationRenderer, error) {
	if festName == "" {
		festName = "Fest"
	}

	r := &NotificationRenderer{
		festName:  festName,
		templates: make(map[models.NotificationType]notificationTemplate, len(notificationTemplateSources)),
	}

	for typ, src := range notificationTemplateSources {
		subject, err := texttemplate.New(string(typ) + "_subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", typ, err)
		}
		body, err := htmltemplate.New(string(typ) + "_body").Parse(emailLayoutHead + src[1] + emailLayoutFoot)
		if err != nil {
			return nil, fmt.Errorf("failed to parse body template %s: %w", typ, err)
		}
		r.templates[typ] = notificationTemplate{subject: subject, body: body}
	}

	return r, nil
}

// Render produces the email for a notification
func (r *NotificationRenderer) Render(n models.Notification) (*EmailMessage, error) {
	tmpl, ok := r.templates[n.Type]
	if !ok {
		return nil, fmt.Errorf("unknown notification type: %s", n.Type)
	}

	view := r.view(n.Data)

	var subject bytes.Buffer
	if err := tmpl.subject.Execute(&subject, view); err != nil {
		return nil, fmt.Errorf("failed to render subject for %s: %w", n.Type, err)
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, view); err != nil {
		return nil, fmt.Errorf("failed to render body for %s: %w", n.Type, err)
	}

	return &EmailMessage{
		To:       n.To,
		Subject:  subject.String(),
		HTMLBody: body.String(),
	}, nil
}

func (r *NotificationRenderer) view(data map[string]interface{}) notificationView {
	return notificationView{
		FestName:         r.festName,
		Name:             dataString(data, "name"),
		EventTitle:       dataString(data, "event_title"),
		TeamName:         dataString(data, "team_name"),
		PaymentStatus:    dataString(data, "payment_status"),
		PaymentID:        dataString(data, "payment_id"),
		OrderID:          dataString(data, "order_id"),
		RegistrationCode: dataString(data, "registration_code"),
		Subject:          dataString(data, "subject"),
		Message:          dataString(data, "message"),
	}
}

func dataString(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
