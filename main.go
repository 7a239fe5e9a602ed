package main

import (
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matst80/slask-harmonizer/pkg/apply"
	"github.com/matst80/slask-harmonizer/pkg/common"
	"github.com/matst80/slask-harmonizer/pkg/listing"
	"github.com/matst80/slask-harmonizer/pkg/mapping"
	"github.com/matst80/slask-harmonizer/pkg/messaging"
	"github.com/matst80/slask-harmonizer/pkg/server"
)

var enableProfiling = flag.Bool("profiling", false, "enable pprof endpoints")

var (
	dataDir       = "data"
	rabbitUrl     = os.Getenv("RABBIT_URL")
	rabbitVHost   = os.Getenv("RABBIT_VHOST")
	eventPrefix   = "harmonizer"
	redisUrl      = os.Getenv("REDIS_URL")
	redisPassword = os.Getenv("REDIS_PASSWORD")
	listenAddress = ":8080"
)

func init() {
	flag.Parse()
	if d, ok := os.LookupEnv("DATA_DIR"); ok {
		dataDir = d
	}
	if p, ok := os.LookupEnv("EVENT_PREFIX"); ok {
		eventPrefix = p
	}
	if addr, ok := os.LookupEnv("LISTEN_ADDRESS"); ok {
		listenAddress = addr
	}
}

func main() {
	listings := listing.NewDiskStore(dataDir)

	mappings, err := mapping.NewStore(path.Join(dataDir, "mappings.json"))
	if err != nil {
		log.Fatalf("Could not open mapping store: %v", err)
	}

	var progress apply.ProgressSink = apply.NopProgress{}
	var rabbit *messaging.RabbitProgress
	if rabbitUrl != "" {
		rabbit, err = messaging.NewRabbitProgress(messaging.RabbitConfig{
			Url:    rabbitUrl,
			VHost:  rabbitVHost,
			Prefix: eventPrefix,
		})
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		progress = rabbit
	} else {
		log.Printf("RABBIT_URL not set, progress events stay local")
	}

	applier := apply.NewApplier(listings, mappings, progress)
	runner := apply.NewRunner(applier, 8)
	defer runner.Close()

	ws := server.NewWebServer(listings, mappings, runner)
	if redisUrl != "" {
		ws.Cache = server.NewCache(redisUrl, redisPassword, 0)
	} else {
		log.Printf("REDIS_URL not set, cluster results are not cached")
	}

	mux := ws.Handle()
	mux.Handle("/metrics", promhttp.Handler())
	if *enableProfiling {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	}

	timeouts := common.LoadTimeoutConfig(common.TimeoutConfig{
		ReadHeader: 5 * time.Second,
		Read:       30 * time.Second,
		Write:      60 * time.Second,
		Idle:       120 * time.Second,
		Shutdown:   15 * time.Second,
		Hook:       5 * time.Second,
	})
	srv := common.NewServerWithTimeouts(&http.Server{
		Addr:    listenAddress,
		Handler: mux,
	}, timeouts)

	common.RunServerWithShutdown(srv, "slask-harmonizer", timeouts.Shutdown, timeouts.Hook, listings.SaveHook)
}
