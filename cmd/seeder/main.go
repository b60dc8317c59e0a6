package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mescon/motion/internal/animation"
	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/services"
)

func int64Ptr(v int64) *int64 { return &v }

func main() {
	dbPath := flag.String("db", "./data/motion.db", "database file to seed")
	runs := flag.Int("runs", 1, "completed runs to journal per motion")
	flag.Parse()

	repo, err := db.NewRepository(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer repo.GracefulClose()

	eb := eventbus.NewEventBus(repo.DB)
	defer eb.Shutdown()

	registry := services.NewMotionRegistry(context.Background(), repo, eb, services.RegistryConfig{
		TickInterval: 5 * time.Millisecond,
	})
	defer registry.Shutdown()

	fmt.Println("Seeding database...")

	// Short durations so the journaled runs finish quickly
	motions := []services.MotionSpec{
		{Name: "width", Initial: 0, Target: 100, DurationMs: int64Ptr(200), Easing: "quad-in-out"},
		{Name: "opacity", Initial: 0, Target: 1, DurationMs: int64Ptr(160), Easing: "linear"},
		{Name: "y", Initial: 100, Target: 0, DurationMs: int64Ptr(120), Easing: "cubic-out"},
	}

	scheduler := services.NewSchedulerService(repo, registry, eb, services.SchedulerConfig{})

	for _, spec := range motions {
		h, err := registry.Create(spec)
		if err != nil {
			log.Printf("Failed to create motion %s: %v", spec.Name, err)
			continue
		}
		id := h.ID().String()

		for i := 0; i < *runs; i++ {
			before := h.Runs()
			h.Start()
			for h.Runs() == before || h.State() != animation.Completed {
				time.Sleep(10 * time.Millisecond)
			}
		}

		if spec.Name == "width" {
			if _, err := scheduler.AddSchedule(id, "*/5 * * * *"); err != nil {
				log.Printf("Failed to add schedule: %v", err)
			}
		}
		fmt.Printf("  %s %s (%d runs)\n", id, spec.Name, h.Runs())
	}

	fmt.Println("Seeding complete.")
}
