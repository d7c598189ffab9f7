// internal/notifications/email.go - SMTP notification channel
package notifications

import (
    "bytes"
    "context"
    "fmt"
    htmltemplate "html/template"
    "text/template"

    "github.com/sirupsen/logrus"
    "gopkg.in/gomail.v2"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
)

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
    DialAndSend(m ...*gomail.Message) error
}

type EmailChannel struct {
    config  *config.EmailConfig
    sender  Sender
    subject *template.Template
}

const emailBody = `<h2>{{.Emoji}} {{.TargetName}}</h2>
<p><strong>{{.Type}}</strong>: {{.Message}}</p>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p><small>{{.Timestamp}}</small></p>`

var emailBodyTemplate = htmltemplate.Must(htmltemplate.New("email_body").Parse(emailBody))

func NewEmailChannel(cfg *config.EmailConfig, sender Sender) (*EmailChannel, error) {
    if sender == nil {
        sender = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
    }

    subject, err := parseTemplate("email_subject", cfg.Subject)
    if err != nil {
        return nil, err
    }

    return &EmailChannel{config: cfg, sender: sender, subject: subject}, nil
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, alert *database.Alert) error {
    if err := ctx.Err(); err != nil {
        return err
    }

    view := newAlertView(alert)
    subject, err := render(e.subject, view)
    if err != nil {
        return err
    }
    var body bytes.Buffer
    if err := emailBodyTemplate.Execute(&body, view); err != nil {
        return fmt.Errorf("failed to execute e-mail body: %w", err)
    }

    m := gomail.NewMessage()
    m.SetHeader("From", e.config.From)
    m.SetHeader("To", e.config.To...)
    m.SetHeader("Subject", subject)
    m.SetBody("text/html", body.String())

    // gomail has no deadlines of its own, so give up on the SMTP exchange when
    // ctx ends; the buffered channel lets the send goroutine finish later
    sent := make(chan error, 1)
    go func() { sent <- e.sender.DialAndSend(m) }()

    select {
    case err := <-sent:
        if err != nil {
            return fmt.Errorf("failed to send e-mail: %w", err)
        }
    case <-ctx.Done():
        return fmt.Errorf("failed to send e-mail: %w", ctx.Err())
    }

    logrus.WithFields(logrus.Fields{
        "target":     alert.TargetID,
        "recipients": len(e.config.To),
    }).Info("E-mail notification sent")
    return nil
}
