// Package main is a demonstration client for the proximity API. It logs
// in two users, publishes noise-perturbed locations, runs the full
// three-step PSI exchange between them and prints the shared interests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/softspot/proximity/pkg/geodist"
	"github.com/softspot/proximity/pkg/noise"
	"github.com/softspot/proximity/pkg/psiclient"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "API base URL")
	initiatorID := flag.String("initiator", "big_ben", "initiator user ID")
	joinerID := flag.String("joiner", "london_eye", "joiner user ID")
	password := flag.String("password", os.Getenv("DEMO_PASSWORD"), "password for both users")
	epsilon := flag.Float64("epsilon", noise.DefaultEpsilon, "privacy budget per location release")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "missing password: pass -password or set DEMO_PASSWORD")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := run(ctx, log, *server, *initiatorID, *joinerID, *password, *epsilon); err != nil {
		log.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, server, initiatorID, joinerID, password string, epsilon float64) error {
	// True locations, never sent to the server.
	truePoints := map[string][2]float64{
		initiatorID: {51.5007, -0.1246}, // Big Ben
		joinerID:    {51.5033, -0.1196}, // London Eye
	}

	mechanism := noise.New(epsilon, noise.DefaultRMaxKM, noise.DefaultGridUnit)
	clients := make(map[string]*psiclient.Client, len(truePoints))

	for userID, point := range truePoints {
		c := psiclient.NewClient(server, nil)
		if err := c.Login(ctx, userID, password); err != nil {
			return fmt.Errorf("login %s: %w", userID, err)
		}
		clients[userID] = c

		lat, lon := mechanism.Perturb(point[0], point[1])
		log.Info("publishing perturbed location", "user_id", userID,
			"lat", fmt.Sprintf("%.4f", lat), "lon", fmt.Sprintf("%.4f", lon),
			"displacement_km", fmt.Sprintf("%.2f", geodist.Kilometers(point[0], point[1], lat, lon)))
		if err := c.UpdateLocation(ctx, userID, lat, lon); err != nil {
			return fmt.Errorf("update location %s: %w", userID, err)
		}
	}

	neighbors, err := clients[initiatorID].NearbyUsers(ctx, initiatorID, 6)
	if err != nil {
		return fmt.Errorf("nearby users: %w", err)
	}
	for _, n := range neighbors {
		log.Info("nearby user", "user_id", n.UserID, "distance_km", n.Distance)
	}

	// PSI over interest sets.
	initiatorInterests := []string{"sports", "books", "music", "movies", "programming", "nature"}
	joinerInterests := []string{"music", "travel", "movies", "nature", "food"}

	alice, err := psiclient.NewInitiator(initiatorID, initiatorInterests)
	if err != nil {
		return err
	}
	sessionID, err := clients[initiatorID].InitiatePSI(ctx, alice)
	if err != nil {
		return fmt.Errorf("initiate: %w", err)
	}
	log.Info("initiated PSI session", "session_id", sessionID, "items", len(initiatorInterests))

	bob, err := psiclient.NewJoiner(joinerID, joinerInterests)
	if err != nil {
		return err
	}
	if err := clients[joinerID].JoinPSI(ctx, sessionID, bob); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	log.Info("joined PSI session", "session_id", sessionID, "items", len(joinerInterests))

	intersections, err := clients[initiatorID].ComputeIntersections(ctx, sessionID, alice)
	if err != nil {
		return fmt.Errorf("compute intersections: %w", err)
	}
	for joiner, items := range intersections {
		fmt.Printf("shared interests with %s (%d): %s\n", joiner, len(items), strings.Join(items, ", "))
	}

	size, err := clients[joinerID].IntersectionSize(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("intersection size: %w", err)
	}
	fmt.Printf("server-reported intersection size for %s: %d\n", joinerID, size)
	return nil
}
