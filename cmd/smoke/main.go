// Smoke test against a running agenda-api instance: exchange a session,
// create an event, read it back anonymously and confirm attendance.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

type session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type createdEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortLink string `json:"short_link"`
}

func main() {
	base := os.Getenv("AGENDA_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	secret := os.Getenv("AGENDA_EXCHANGE_SECRET")
	if secret == "" {
		log.Fatal("AGENDA_EXCHANGE_SECRET is required for the smoke run")
	}

	client := resty.New().SetBaseURL(base).SetTimeout(10 * time.Second)

	var adminSession session
	resp, err := client.R().
		SetBody(map[string]string{
			"secret":  secret,
			"user_id": fmt.Sprintf("smoke-%d", time.Now().Unix()),
			"email":   "smoke@agenda.org",
			"name":    "Smoke Runner",
		}).
		SetResult(&adminSession).
		Post("/v1/auth/exchange")
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("exchange: %v (%s)", err, resp.Status())
	}
	log.Printf("session for %s as %s", adminSession.UserID, adminSession.Role)

	if adminSession.Role != "organizationMember" && adminSession.Role != "admin" {
		log.Fatalf("smoke account resolved to %q, needs organizationMember or above; allowlist smoke@agenda.org", adminSession.Role)
	}

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	var ev createdEvent
	resp, err = client.R().
		SetAuthToken(adminSession.Token).
		SetBody(map[string]any{
			"name":       fmt.Sprintf("Smoke event %d", time.Now().Unix()),
			"visibility": "unauthenticated",
			"start_time": start.Format(time.RFC3339),
			"end_time":   start.Add(time.Hour).Format(time.RFC3339),
		}).
		SetResult(&ev).
		Post("/v1/events")
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("create event: %v (%s)", err, resp.Status())
	}
	log.Printf("created event %s (%s)", ev.ID, ev.ShortLink)

	// Anonymous read must work for an unauthenticated-visible event
	resp, err = client.R().Get("/v1/events/" + ev.ID)
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("anonymous read: %v (%s)", err, resp.Status())
	}

	resp, err = client.R().
		SetAuthToken(adminSession.Token).
		Post("/v1/events/" + ev.ID + "/confirm")
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("confirm: %v (%s)", err, resp.Status())
	}

	var upcoming struct {
		IDs []string `json:"ids"`
	}
	resp, err = client.R().SetResult(&upcoming).Get("/v1/events/upcoming")
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("upcoming: %v (%s)", err, resp.Status())
	}
	found := false
	for _, id := range upcoming.IDs {
		if id == ev.ID {
			found = true
			break
		}
	}
	if !found {
		log.Fatalf("event %s missing from upcoming %v", ev.ID, upcoming.IDs)
	}

	// Cleanup
	resp, err = client.R().
		SetAuthToken(adminSession.Token).
		Delete("/v1/events/" + ev.ID)
	if err != nil || !resp.IsSuccess() {
		log.Fatalf("delete: %v (%s)", err, resp.Status())
	}

	log.Println("smoke OK")
}
