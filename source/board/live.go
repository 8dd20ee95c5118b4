package board

import (
	"context"
	funnelreferences "crm/source/entities/funnel_references"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Listen follows the funnel event stream at url and invalidates the cached
// columns each event touched. It returns when ctx is done or the connection
// drops.
func Listen(ctx context.Context, url string, header http.Header, cache *QueryCache) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial funnel events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		msg := funnelreferences.FunnelWSMessage{}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read funnel event: %w", err)
		}

		stages := msg.Event.AffectedStages()
		if len(stages) == 0 {
			log.Printf("[Board] Evento %q sem estágios afetados", msg.Action)
			continue
		}
		cache.InvalidateStages(msg.Event.FunnelID, stages...)
	}
}
