package mailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	db "github.com/katatrina/taskhub-BE/internal/db"
)

// RenderDigest builds the daily summary mail of a user's unread notifications.
func RenderDigest(user db.User, notifications []db.Notification, now time.Time) Email {
	name := user.FullName
	if name == "" {
		name = user.Username
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", name)
	fmt.Fprintf(&body, "You have %s in the last 24 hours:\n\n",
		pluralize(len(notifications), "unread notification", "unread notifications"))

	for _, n := range notifications {
		fmt.Fprintf(&body, "- %s (%s)\n", n.Title, humanize.RelTime(n.CreatedAt, now, "ago", "from now"))
		if n.Message != "" {
			fmt.Fprintf(&body, "  %s\n", n.Message)
		}
	}
	body.WriteString("\nYou can turn these emails off in your notification preferences.\n")

	return Email{
		To:      []string{user.Email},
		Subject: fmt.Sprintf("Daily Digest - %d unread notifications", len(notifications)),
		Body:    body.String(),
	}
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return humanize.Comma(int64(n)) + " " + plural
}
