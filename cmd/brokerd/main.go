// Command brokerd runs one broker endpoint: it binds the router/pub
// sockets described by spec.md §6, peers with any remotes named on the
// command line, and optionally attaches a master or clone store, the
// same env-var-driven startup server_unified/main.go uses for its own
// listen/connect/register sequence.
package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/broker/broker/internal/clock"
	"github.com/broker/broker/internal/config"
	"github.com/broker/broker/internal/endpoint"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/wire"
)

func main() {
	self := flag.String("self", envOr("BROKER_SELF", ""), "this endpoint's address, as peers see it")
	routerAddr := flag.String("router", envOr("BROKER_ROUTER_ADDR", "tcp://*:9999"), "address to bind the router socket on")
	pubAddr := flag.String("pub", envOr("BROKER_PUB_ADDR", "tcp://*:9998"), "address to bind the pub socket on")
	peers := flag.String("peers", os.Getenv("BROKER_PEERS"), "comma-separated self=router=pub triples to peer with at startup")
	masterStore := flag.String("master", os.Getenv("BROKER_MASTER_STORE"), "name of a store to attach as master")
	cloneStore := flag.String("clone", os.Getenv("BROKER_CLONE_STORE"), "name of a store to attach as clone")
	cloneOf := flag.String("clone-of", os.Getenv("BROKER_CLONE_MASTER"), "remote handle the clone store resyncs against")
	flag.Parse()

	if *self == "" {
		log.Fatal("brokerd: -self (or BROKER_SELF) is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("brokerd: load config: %v", err)
	}

	ep, err := endpoint.New(*self, *routerAddr, *pubAddr, cfg, clock.NewReal())
	if err != nil {
		log.Fatalf("brokerd: %v", err)
	}

	for _, p := range splitTriples(*peers) {
		if err := ep.Peer(p.handle, p.router, p.pub, 3); err != nil {
			log.Printf("brokerd: peer %s: %v", p.handle, err)
		}
	}

	if *masterStore != "" {
		if _, err := ep.AttachMaster(*masterStore, store.NewMemory()); err != nil {
			log.Fatalf("brokerd: attach master %q: %v", *masterStore, err)
		}
	}

	if *cloneStore != "" {
		if _, err := ep.AttachClone(*cloneStore); err != nil {
			log.Fatalf("brokerd: attach clone %q: %v", *cloneStore, err)
		}
		if *cloneOf != "" {
			if err := ep.Resync(*cloneStore, wire.RemoteHandle(*cloneOf)); err != nil {
				log.Fatalf("brokerd: resync clone %q against %q: %v", *cloneStore, *cloneOf, err)
			}
		}
	}

	log.Printf("brokerd: %s listening, router=%s pub=%s", *self, *routerAddr, *pubAddr)
	select {}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type peerTriple struct {
	handle      wire.RemoteHandle
	router, pub string
}

// splitTriples parses "handle=router=pub,handle=router=pub,..." into the
// arguments Endpoint.Peer expects.
func splitTriples(raw string) []peerTriple {
	if raw == "" {
		return nil
	}
	var out []peerTriple
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, "=", 3)
		if len(parts) != 3 {
			log.Printf("brokerd: ignoring malformed peer entry %q", entry)
			continue
		}
		out = append(out, peerTriple{handle: wire.RemoteHandle(parts[0]), router: parts[1], pub: parts[2]})
	}
	return out
}
