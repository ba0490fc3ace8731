package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <title>{{.Subject}}</title>
  </head>
  <body style="margin:0;padding:0;background-color:#f8fafc;font-family:'Segoe UI',Tahoma,Geneva,Verdana,sans-serif;color:#334155;line-height:1.6;">
    <table width="100%" cellpadding="0" cellspacing="0" border="0">
      <tr>
        <td align="center">
          <div style="background-color:#ffffff;max-width:600px;margin:0 auto;border-radius:12px;overflow:hidden;">
            <div style="background:linear-gradient(135deg,#4f46e5 0%,#7c3aed 100%);padding:30px 0;text-align:center;">
              <div style="color:#ffffff;font-size:24px;font-weight:600;">MediBot</div>
            </div>
            <div style="padding:40px;">
              <h1 style="font-size:20px;color:#1e293b;">Hello {{.Greeting}},</h1>
              <div style="background-color:#f1f5f9;border-left:4px solid #4f46e5;padding:20px;margin:25px 0;">
                <div style="font-size:14px;font-weight:600;color:#64748b;text-transform:uppercase;">Notification</div>
                <div style="font-size:16px;color:#1e293b;">{{.Message}}</div>
              </div>
            </div>
            <div style="background-color:#f8fafc;padding:25px 40px;text-align:center;border-top:1px solid #e2e8f0;">
              <p style="font-size:14px;color:#64748b;">Need help? We're here for you.</p>
              <p style="font-size:12px;color:#94a3b8;">&copy; {{.Year}} MediBot. All rights reserved.</p>
            </div>
          </div>
        </td>
      </tr>
    </table>
  </body>
</html>
`))

// RenderEmail to the branded HTML body. The message is escaped.
func RenderEmail(to, subject, message string) (string, error) {
	greeting, _, _ := strings.Cut(to, "@")
	if greeting == "" {
		greeting = "there"
	}

	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Subject  string
		Greeting string
		Message  string
		Year     int
	}{
		Subject:  subject,
		Greeting: greeting,
		Message:  message,
		Year:     time.Now().Year(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}

	return buf.String(), nil
}
