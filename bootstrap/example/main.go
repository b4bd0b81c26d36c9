// Example demonstrating the gproc bootstrap system: a counter process
// served over the HTTP gateway, with a custom service that ticks it.
//
//	go run ./bootstrap/example -config gproc.yaml
//	curl localhost:8080/counter/value
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/najoast/gproc/bootstrap"
	"github.com/najoast/gproc/config"
	"github.com/najoast/gproc/core"
	"github.com/najoast/gproc/future"
)

// counter holds a value that is only touched from its own events
type counter struct {
	core.ProcessBase
	value int
}

func (c *counter) Initialize() {
	c.Route("value", func(*core.Request) future.Future[*core.Response] {
		return future.Ready(core.NewResponse(http.StatusOK, []byte(strconv.Itoa(c.value))))
	})
}

func (c *counter) tick() {
	c.value++
}

// TickerService increments the counter every interval
type TickerService struct {
	app      *bootstrap.DefaultApplication
	counter  *core.PID
	interval time.Duration

	mu      sync.Mutex
	timer   core.Timer
	ticks   int
	stopped bool
}

func (s *TickerService) Name() string {
	return "ticker"
}

func (s *TickerService) Start(ctx context.Context) error {
	s.schedule()
	return nil
}

func (s *TickerService) schedule() {
	rt := s.app.Runtime()
	if rt == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timer = rt.Clock().Timer(s.interval, func() {
		core.DispatchVoid(rt, *s.counter, (*counter).tick)
		s.mu.Lock()
		s.ticks++
		s.mu.Unlock()
		s.schedule()
	})
}

func (s *TickerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if rt := s.app.Runtime(); rt != nil {
		rt.Clock().Cancel(s.timer)
	}
	return nil
}

func (s *TickerService) Health(ctx context.Context) (bootstrap.HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bootstrap.HealthStatus{
		State:   bootstrap.HealthHealthy,
		Message: "ticking",
		Data:    map[string]interface{}{"ticks": s.ticks},
	}, nil
}

func main() {
	configFile := flag.String("config", "", "configuration file (yaml or json)")
	flag.Parse()

	var pid core.PID
	ticker := &TickerService{counter: &pid, interval: time.Second}

	builder := bootstrap.NewApplicationBuilder().
		WithSetup(func(rt *core.Runtime) error {
			var err error
			pid, err = rt.Spawn(&counter{}, core.WithID("counter"))
			return err
		}).
		WithService("ticker", ticker, bootstrap.RuntimeServiceName)

	if *configFile != "" {
		builder.WithConfigFile(*configFile)
	} else {
		cfg := config.DefaultConfig()
		cfg.HTTP.Enabled = true
		builder.WithConfig(cfg)
	}

	app, err := builder.Build()
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	ticker.app = app

	app.LifecycleManager().AddListener(func(event bootstrap.LifecycleEvent) {
		if event.Service != "" {
			fmt.Printf("Event: %s (service: %s)\n", event.Type, event.Service)
		}
	})

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}
