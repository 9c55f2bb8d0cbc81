package notify

import "html/template"

var (
	bookingConfirmedClientTpl = template.Must(template.New("booking_client").Parse(
		`<p>Hello {{.Client}},</p><p>your appointment <strong>{{.Title}}</strong>{{if .Provider}} with {{.Provider}}{{end}} is confirmed.</p><p>{{.Start}} - {{.End}}</p>`))

	bookingConfirmedProviderTpl = template.Must(template.New("booking_provider").Parse(
		`<p>Hello {{.Provider}},</p><p>{{if .Client}}{{.Client}}{{else}}A client{{end}} booked <strong>{{.Title}}</strong>.</p><p>{{.Start}} - {{.End}}</p>`))

	bookingCancelledTpl = template.Must(template.New("booking_cancelled").Parse(
		`<p>Hello {{.Provider}},</p><p>the appointment <strong>{{.Title}}</strong> on {{.Start}} was cancelled and is available again.</p>`))

	organizationCreatedTpl = template.Must(template.New("org_created").Parse(
		`<p>Hello {{.Owner}},</p><p>the organization <strong>{{.Organization}}</strong> was created. Subscribe to enable departments, providers and events.</p>`))

	subscriptionActivatedTpl = template.Must(template.New("sub_active").Parse(
		`<p>Hello {{.Owner}},</p><p>the subscription for <strong>{{.Organization}}</strong> is active. Your organization is now enabled.</p>`))

	subscriptionCanceledTpl = template.Must(template.New("sub_canceled").Parse(
		`<p>Hello {{.Owner}},</p><p>the subscription for <strong>{{.Organization}}</strong> was cancelled and the organization has been disabled.</p>`))

	welcomeTpl = template.Must(template.New("welcome").Parse(
		`<p>Hello {{.Name}},</p><p>an account was created for you.</p><p>Email: {{.Email}}<br>Temporary password: <code>{{.Password}}</code></p><p>You will be asked to change it after signing in.</p>`))
)
