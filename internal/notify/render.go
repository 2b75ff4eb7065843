// Package notify turns grievance lifecycle events into email messages and
// delivers them through a best-effort sink off the request path.
package notify

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/iliyamo/grievance-portal/internal/queue"
)

// Message is one rendered email.  HTML is empty unless the renderer was
// built with HTML output enabled.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Renderer formats events.  It holds no mutable state and is safe for
// concurrent use.
type Renderer struct {
	md goldmark.Markdown // nil disables HTML parts
}

// NewRenderer returns a renderer; withHTML adds an HTML alternative part
// produced by rendering the text body as markdown.
func NewRenderer(withHTML bool) *Renderer {
	r := &Renderer{}
	if withHTML {
		r.md = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))
	}
	return r
}

// Render returns the messages for ev, one per recipient.  Created goes to
// the admin and the student; Assigned to the handler; the rest to the
// student.  Recipients with no address are skipped.
func (r *Renderer) Render(ev queue.Event) []Message {
	var out []Message
	add := func(to, subject, body string) {
		if to == "" {
			return
		}
		out = append(out, r.message(to, subject, body))
	}

	switch ev.Kind {
	case queue.KindCreated:
		add(ev.AdminEmail, "New Grievance Submitted: "+ev.Title, fmt.Sprintf(`Hello Admin,

A new grievance has been submitted.

Grievance ID: %d
Student: %s (%s)
Title: %s

Please log in to review and take action.

Best regards,
Grievance Portal
`, ev.GrievanceID, ev.StudentName, ev.StudentEmail, ev.Title))

		add(ev.StudentEmail, "Grievance Received: "+ev.Title, fmt.Sprintf(`Hello %s,

Your grievance has been successfully submitted and assigned ID: %d.

Title: %s

You can track the status at any time. We will notify you of updates.

Best regards,
Grievance Portal Team
`, ev.StudentName, ev.GrievanceID, ev.Title))

	case queue.KindStatusChanged:
		add(ev.StudentEmail, "Grievance Status Update: "+ev.Title, fmt.Sprintf(`Hello %s,

The status of your grievance (ID: %d) has been updated.

Previous Status: %s
New Status: %s
Title: %s

Please log in for more details.

Best regards,
Grievance Portal Team
`, ev.StudentName, ev.GrievanceID, ev.OldStatus, ev.NewStatus, ev.Title))

	case queue.KindAssigned:
		add(ev.HandlerEmail, "New Grievance Assigned: "+ev.Title, fmt.Sprintf(`Hello %s,

A grievance has been assigned to you for resolution.

Grievance ID: %d
Title: %s

Please review and take necessary action.

Best regards,
Grievance Portal
`, ev.HandlerName, ev.GrievanceID, ev.Title))

	case queue.KindResolved:
		add(ev.StudentEmail, "Grievance Resolved: "+ev.Title, fmt.Sprintf(`Hello %s,

Your grievance (ID: %d) has been marked as resolved.

Title: %s
Resolution: %s

Thank you for bringing this matter to our attention.

Best regards,
Grievance Portal Team
`, ev.StudentName, ev.GrievanceID, ev.Title, ev.Resolution))
	}
	return out
}

func (r *Renderer) message(to, subject, text string) Message {
	m := Message{To: to, Subject: subject, Text: text}
	if r.md != nil {
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(text), &buf); err == nil {
			m.HTML = buf.String()
		}
	}
	return m
}
