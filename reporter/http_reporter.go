// This is a http type of reporter.
// It fetches data from the internal projection store
// and publishes it on the http routes, plus a server-sent
// event stream for push subscribers.

package reporter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/state"
)

const (
	ROUTE_RECEIVABLES = "/receivables"
	ROUTE_RECEIVABLE  = "/receivables/:id"
	ROUTE_EVENTS      = "/events"
	ROUTE_HEALTHZ     = "/healthz"
	ROUTE_METRICS     = "/metrics"
)

// KeepAliveInterval spaces the SSE heartbeat comments that stop
// intermediaries from cutting an idle stream.
const KeepAliveInterval = 15 * time.Second

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data source
	store *state.Store
}

func NewHttpReporter(serverIP string, serverPort string, store *state.Store) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		store:      store,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(ROUTE_RECEIVABLES, h.Receivables)
	router.GET(ROUTE_RECEIVABLE, h.Receivable)
	router.GET(ROUTE_EVENTS, h.Events)
	router.GET(ROUTE_HEALTHZ, Healthz)
	router.GET(ROUTE_METRICS, gin.WrapH(promhttp.Handler()))

	return router
}

// Hook up router & ip:port
func (h *HttpReporter) Run() error {
	router := h.SetupRouter()
	address := h.serverIP + ":" + h.serverPort
	return router.Run(address)
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Receivables publishes the full active snapshot.
func (h *HttpReporter) Receivables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.store.Snapshot()})
}

// Receivable publishes one transfer by its token id.
func (h *HttpReporter) Receivable(c *gin.Context) {
	id, ok := new(big.Int).SetString(c.Param("id"), 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a decimal token id"})
		return
	}

	r := h.store.Get(id)
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such receivable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": r})
}

// Events streams store changes as server-sent events. The stream opens
// with a full snapshot so a client never needs a separate initial fetch,
// then forwards each store event, with keep-alive comments in between.
func (h *HttpReporter) Events(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// buffered so a slow client never blocks the store's fan-out
	events := make(chan state.Event, 64)
	handle := h.store.Subscribe(func(ev state.Event) {
		select {
		case events <- ev:
		default:
			// client too slow, drop; it still holds the snapshot and
			// can reconnect for a fresh one
		}
	})
	defer h.store.Unsubscribe(handle)

	if err := writeSSE(c.Writer, "snapshot", gin.H{"receivables": h.store.Snapshot()}); err != nil {
		return
	}
	c.Writer.Flush()

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev := <-events:
			payload := gin.H{"id": ev.Id.String()}
			if ev.Receivable != nil {
				payload["receivable"] = ev.Receivable
			}
			if err := writeSSE(c.Writer, string(ev.Kind), payload); err != nil {
				return
			}
			c.Writer.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("failed to marshal sse payload: %v", err)
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
