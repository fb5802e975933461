package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/dpup/prefab"

	"github.com/stipator/stipator/internal/alert"
	"github.com/stipator/stipator/internal/clients/googlemaps"
	"github.com/stipator/stipator/internal/clients/twilio"
	"github.com/stipator/stipator/internal/config"
	"github.com/stipator/stipator/internal/services"
	"github.com/stipator/stipator/internal/store"
)

func main() {
	// Load configuration using Prefab's config system
	appConfig := loadConfig()

	if appConfig.Google.APIKey == "" {
		log.Fatal("Google API key is required in configuration for routing and geocoding")
	}
	if appConfig.Twilio.AccountSID == "" || appConfig.Twilio.AuthToken == "" || appConfig.Twilio.FromNumber == "" {
		log.Fatal("Twilio credentials are required in configuration for contact alerts")
	}

	// Initialize external API clients
	mapsClient := googlemaps.NewClient(appConfig.Google.APIKey)
	smsGateway := twilio.NewClient(appConfig.Twilio.AccountSID, appConfig.Twilio.AuthToken, appConfig.Twilio.FromNumber)

	// Initialize stores and the alert pipeline
	tripStore := store.NewTripStore()
	contactStore := store.NewContactStore()
	dispatcher := alert.NewDispatcher(smsGateway)

	tripService := services.NewTripService(appConfig, mapsClient, tripStore, contactStore, dispatcher)

	log.Printf("Trip safety server starting")
	log.Printf("Deviation threshold: %.0fm, check-in every %v", appConfig.Monitoring.DeviationThresholdMeters, appConfig.Monitoring.CheckInInterval)

	// Flag trips that run far past their expected duration
	sweeper := services.NewStaleTripSweeper(tripService, appConfig.Monitoring.StaleSweepInterval, appConfig.Monitoring.StaleTripAge)
	if err := sweeper.Start(context.Background()); err != nil {
		log.Printf("Failed to start stale trip sweeper: %v", err)
	}

	tripHandler := services.NewTripHandler(tripService)
	contactHandler := services.NewContactHandler(contactStore)

	// Create Prefab server; port and friends come from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
		prefab.WithHTTPHandlerFunc("/api/v1/trips", tripHandler.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/v1/trips/", tripHandler.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/v1/contacts", contactHandler.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/v1/contacts/", contactHandler.ServeHTTP),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration using Prefab's config system
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("tracking", &appConfig.Tracking); err != nil {
		log.Fatalf("Failed to unmarshal tracking section: %v", err)
	}
	if err := prefab.Config.Unmarshal("monitoring", &appConfig.Monitoring); err != nil {
		log.Fatalf("Failed to unmarshal monitoring section: %v", err)
	}
	if err := prefab.Config.Unmarshal("google", &appConfig.Google); err != nil {
		log.Fatalf("Failed to unmarshal google section: %v", err)
	}
	if err := prefab.Config.Unmarshal("twilio", &appConfig.Twilio); err != nil {
		log.Fatalf("Failed to unmarshal twilio section: %v", err)
	}

	return appConfig
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>stipator</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">stipator</span>

Trip safety monitoring server: route adherence checks, periodic
location check-ins, and emergency alerts to trusted contacts.

<span class="header">API Endpoints:</span>

Trips API:
  POST /api/v1/trips                  - Start monitoring a trip
  GET  /api/v1/trips?user_id={id}     - List a user's trips
  GET  /api/v1/trips/{trip_id}        - Get trip details
  POST /api/v1/trips/{trip_id}/fixes     - Report a location fix
  POST /api/v1/trips/{trip_id}/panic     - Trigger an emergency alert
  POST /api/v1/trips/{trip_id}/complete  - Mark safe arrival
  POST /api/v1/trips/{trip_id}/cancel    - Cancel the trip

Contacts API:
  POST   /api/v1/contacts                - Add a trusted contact
  GET    /api/v1/contacts?user_id={id}   - List trusted contacts
  DELETE /api/v1/contacts/{contact_id}   - Remove a trusted contact

<span class="header">Data Sources:</span>
  • Google Routes API      - Planned route polylines
  • Google Geocoding API   - Address resolution
  • Twilio Messaging API   - SMS alerts to contacts
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
