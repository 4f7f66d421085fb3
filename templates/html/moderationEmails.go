package templates

import (
	"fmt"
	"html"
)

func greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("<h2>Hi %s,</h2>", html.EscapeString(name))
}

func reasonBox(heading, reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf(`
      <div class="reason-box">
        <h4>%s</h4>
        <p>%s</p>
      </div>`, html.EscapeString(heading), html.EscapeString(reason))
}

// RenderContentFlaggedEmail tells an owner their content is awaiting review
func RenderContentFlaggedEmail(name, reason string) string {
	body := greeting(name) + `
      <p>Something you submitted was flagged by our automated checks and is now waiting for a moderator.</p>` +
		reasonBox("Why it was flagged", reason) + `
      <p>No action is needed from you yet. We will email you again once a moderator has reviewed it.</p>`
	return layout("Your content is under review", "#f59e0b", "#d97706", body)
}

// RenderFlagDecisionEmail tells an owner how a review ended. outcome is
// resolved when action was taken and dismissed when the flag was cleared.
func RenderFlagDecisionEmail(name, outcome string) string {
	message := "<p>A moderator reviewed your content and took action under our content policy.</p>"
	if outcome == "dismissed" {
		message = "<p>Good news: a moderator reviewed your content and found nothing wrong. The flag has been cleared.</p>"
	}
	body := greeting(name) + "\n      " + message + `
      <p style="margin-top: 30px; color: #9ca3af; font-size: 14px;">If you have questions about this decision, please reach out to our support team.</p>`
	return layout("Review complete", "#667eea", "#764ba2", body)
}

// RenderVerifiedEmail tells a user their identity was verified
func RenderVerifiedEmail(name string) string {
	body := greeting(name) + `
      <p>Your identity has been verified. Your account now carries the verified badge.</p>`
	return layout("You're verified", "#10b981", "#059669", body)
}

// RenderKYCRejectedEmail tells a user why their verification request failed
func RenderKYCRejectedEmail(name, reason string) string {
	body := greeting(name) + `
      <p>We could not verify your identity from the documents you submitted.</p>` +
		reasonBox("Reason", reason) + `
      <p>You are welcome to submit a new request once the issue above is fixed.</p>`
	return layout("Verification update", "#6b7280", "#4b5563", body)
}
