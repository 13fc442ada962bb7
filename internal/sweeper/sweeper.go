package sweeper

import (
	"context"
	"time"

	"github.com/Marshallmay28/zetumall-backend/internal/services"
	"github.com/Marshallmay28/zetumall-backend/utils"
)

// Start runs the escrow expiry sweep until ctx is cancelled. It runs
// once immediately, then on every tick. Meant to run in a background
// goroutine next to the HTTP server.
func Start(ctx context.Context, escrow *services.EscrowService, interval time.Duration) {
	log := utils.DefaultLogger
	log.Info("escrow expiry sweeper started (interval %s)", interval)

	sweep := func() {
		n, err := escrow.ExpireDue(ctx, time.Now())
		if err != nil {
			log.Error("expiry sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Info("expiry sweep closed %d escrow(s)", n)
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("escrow expiry sweeper stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
