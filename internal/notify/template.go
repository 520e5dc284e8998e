package notify

import (
	"fmt"
	"strings"
	"time"

	"pitstop/internal/store"
)

const dueDateFormat = "Monday, 2 Jan 2006 15:04"

// ServiceReminder builds the reminder email from the entity state passed
// in. Callers fetch that state at fire time, not at scheduling time, so an
// edited vehicle or service is reflected in the mail.
func ServiceReminder(user store.User, vehicle store.Vehicle, svc store.VehicleService) Message {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	subject := fmt.Sprintf("Service Reminder: %s %s", vehicle.Make, vehicle.Model)

	serviceType := svc.ServiceType
	if serviceType == "" {
		serviceType = "a"
	}
	due := FormatDueDate(svc.NextServiceDate)

	plain := fmt.Sprintf(
		"Hello %s, this is a reminder that your %s %s [%s] is due for %s service on %s.",
		name, vehicle.Make, vehicle.Model, vehicle.LicensePlate, serviceType, due,
	)

	html := fmt.Sprintf(`<h2>Service Reminder</h2>
<p>Hello %s,</p>
<p>This is a reminder that your vehicle is due for service:</p>
<ul>
  <li>Vehicle: %s %s (%d) &mdash; %s</li>
  <li>Service Type: %s</li>
  <li>Due Date: %s</li>
</ul>
<p>Please schedule your service appointment at your earliest convenience.</p>`,
		name, vehicle.Make, vehicle.Model, vehicle.Year, vehicle.LicensePlate, serviceType, due,
	)

	return Message{
		To:        user.Email,
		ToName:    name,
		Subject:   subject,
		PlainBody: plain,
		HTMLBody:  html,
	}
}

// FormatDueDate renders a due date the way reminder mails do.
func FormatDueDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown Date"
	}
	return t.Format(dueDateFormat)
}
