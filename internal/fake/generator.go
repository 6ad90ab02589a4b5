// Package fake provides utilities for generating random discovery data for testing and development purposes.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mclookup/internal/models"
)

// Store receives the generated rows.
type Store interface {
	InsertServer(ctx context.Context, s *models.ServerRecord) (int64, error)
	UpsertPlayer(ctx context.Context, p models.PlayerRecord) error
}

var (
	versions = []struct {
		name     string
		protocol int
	}{
		{"1.8.9", 47}, {"1.12.2", 340}, {"1.16.5", 754}, {"1.19", 759},
		{"1.19.2", 760}, {"1.20.1", 763}, {"1.20.4", 765}, {"1.21.1", 767},
	}
	accesses  = []models.Access{models.AccessLicensed, models.AccessOpen, models.AccessWhitelisted, models.AccessUndetermined}
	countries = []string{"US", "DE", "RU", "FR", "GB", "PL", "BR", "CA", "NL", "SE", "JP", "KR", "UA", "FI"}
	motds     = []string{"A Minecraft Server", "Survival SMP", "§aCreative §rbuild world", "Skyblock | 1.20", "Private server"}
)

// GenerateData populates the storage with count random server sightings and their players.
// It returns the number of servers stored.
func GenerateData(ctx context.Context, store Store, count int) int {
	type endpoint struct {
		address string
		country string
	}
	var history []endpoint
	stored := 0

	for i := 0; i < count && ctx.Err() == nil; i++ {
		var ep endpoint

		// 20% chance for another sighting of a known address
		if len(history) > 0 && rand.Float32() < 0.2 {
			ep = history[rand.Intn(len(history))]
		} else {
			ep = endpoint{
				address: fmt.Sprintf("%d.%d.%d.%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(254)+1),
				country: countries[rand.Intn(len(countries))],
			}
			history = append(history, ep)
		}

		v := versions[rand.Intn(len(versions))]
		maxPlayers := 10 * (rand.Intn(10) + 1)
		st := &models.Status{
			VersionName: v.name,
			Protocol:    v.protocol,
			MOTD:        motds[rand.Intn(len(motds))],
			Online:      rand.Intn(maxPlayers + 1),
			Max:         maxPlayers,
		}

		seen := time.Now().Add(-time.Duration(rand.Intn(30*24*60)) * time.Minute)
		rec := models.NewServerRecord(ep.address, 25565, st, accesses[rand.Intn(len(accesses))], seen)
		rec.CountryCode = ep.country

		id, err := store.InsertServer(ctx, &rec)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake server")
			continue
		}
		stored++

		for p := 0; p < min(st.Online, 12); p++ {
			player := models.PlayerRecord{
				UUID:     uuid.NewString(),
				Name:     fmt.Sprintf("Player%04d", rand.Intn(10000)),
				ServerID: id,
				LastSeen: seen.Add(time.Duration(rand.Intn(600)) * time.Second),
			}
			if err := store.UpsertPlayer(ctx, player); err != nil {
				log.Warn().Err(err).Msg("Failed to generate fake player")
			}
		}
	}

	return stored
}
