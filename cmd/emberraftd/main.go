/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
emberraftd hosts one Raft group in this process: it parses the peer list,
opens (or recovers) the journal, starts the event loop, and applies
committed entries to a tiny in-memory key-value store, purely to give the
embedding API's apply callback somewhere concrete to deliver to. A real
embedder links internal/runtime directly and supplies its own callback.

Usage:

	emberraftd --group orders --node-id 1 --port 7001 \
	    --peers 1@localhost:7001,2@localhost:7002,3@localhost:7003 \
	    --data-dir /var/lib/emberraft/orders
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"emberraft/internal/config"
	"emberraft/internal/discovery"
	"emberraft/internal/journal"
	"emberraft/internal/logging"
	"emberraft/internal/raft"
	"emberraft/internal/runtime"
	"emberraft/internal/wire"
)

func main() {
	group := flag.String("group", "", "Raft group identity this process hosts (required)")
	nodeID := flag.Uint("node-id", 0, "this node's ID within the group (required)")
	port := flag.Uint("port", 0, "TCP port to listen on for peer traffic (required)")
	peersFlag := flag.String("peers", "", "comma-separated id@host:port[/nonvoting] list, including self (required)")
	dataDir := flag.String("data-dir", "", "directory for the durable journal; empty hosts the group in memory only")
	discoverEnabled := flag.Bool("discover", false, "advertise this node over mDNS for emberraft-discover")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "emit logs as JSON lines instead of text")
	flag.Parse()

	logging.SetGlobalLevel(logging.ParseLevel(*logLevel))
	logging.SetJSONMode(*logJSON)
	log := logging.NewLogger("emberraftd")

	if *group == "" || *nodeID == 0 || *port == 0 || *peersFlag == "" {
		fmt.Fprintln(os.Stderr, "emberraftd: --group, --node-id, --port, and --peers are all required")
		flag.Usage()
		os.Exit(2)
	}

	nodes, err := parsePeers(*peersFlag)
	if err != nil {
		log.Error("invalid --peers", "error", err.Error())
		os.Exit(2)
	}

	loopCfg := config.DefaultLoopConfig()
	loopCfg.SelfPort = uint16(*port)
	electionCfg := config.DefaultElectionConfig()
	heartbeatEvery := electionCfg.TimeoutMin / 5

	evt, err := runtime.Make(loopCfg, electionCfg, config.DefaultPromotionConfig(), config.DefaultReconnectConfig(), heartbeatEvery)
	if err != nil {
		log.Error("failed to start event loop", "error", err.Error())
		os.Exit(1)
	}

	store := newMemStore()
	evt.OnApply(func(identity string, entry wire.Entry) {
		store.apply(entry.Payload)
		log.Info("applied entry", "group", identity, "index", strconv.FormatUint(entry.Index, 10))
	})

	var engine journal.Engine
	if *dataDir != "" {
		journalCfg := config.DefaultJournalConfig()
		journalCfg.Dir = *dataDir
		fileEngine, err := journal.NewFileEngine(journalCfg.Dir)
		if err != nil {
			log.Error("failed to open journal", "dir", journalCfg.Dir, "error", err.Error())
			os.Exit(1)
		}
		engine = fileEngine
	}

	var disco *discovery.Service
	if *discoverEnabled {
		disco, err = discovery.NewService(discovery.Config{
			NodeID:   uint32(*nodeID),
			Identity: *group,
			Port:     uint32(*port),
			Enabled:  true,
		})
		if err != nil {
			log.Warn("mDNS advertisement failed to start", "error", err.Error())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evt.Once()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "group", *group)
		if disco != nil {
			disco.Close()
		}
		return evt.Free()
	})

	// AddGroup hands its work to the loop thread, so the loop must already
	// be running before this call can return.
	if err := evt.AddGroup(runtime.GroupSpec{
		Identity: *group,
		SelfID:   uint32(*nodeID),
		Nodes:    nodes,
		Engine:   engine,
	}); err != nil {
		log.Error("failed to host group", "group", *group, "error", err.Error())
		stop()
		g.Wait()
		os.Exit(1)
	}

	log.Info("emberraftd started", "group", *group, "node_id", strconv.FormatUint(uint64(*nodeID), 10), "port", strconv.FormatUint(uint64(*port), 10))
	if err := g.Wait(); err != nil {
		log.Error("exited with error", "error", err.Error())
		os.Exit(1)
	}
}

// parsePeers parses "id@host:port[/nonvoting],..." into NodeSpecs.
func parsePeers(raw string) ([]runtime.NodeSpec, error) {
	parts := strings.Split(raw, ",")
	nodes := make([]runtime.NodeSpec, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		idHost := strings.SplitN(p, "@", 2)
		if len(idHost) != 2 {
			return nil, fmt.Errorf("peer %q: expected id@host:port", p)
		}
		id, err := strconv.ParseUint(idHost[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("peer %q: invalid node id: %w", p, err)
		}
		fields := strings.Split(idHost[1], ":")
		if len(fields) < 2 {
			return nil, fmt.Errorf("peer %q: expected host:port", p)
		}
		host := strings.Join(fields[:len(fields)-1], ":")
		portField := fields[len(fields)-1]
		voting := raft.NodeVoter
		if portIdx := strings.Index(portField, "/"); portIdx >= 0 {
			if portField[portIdx+1:] == "nonvoting" {
				voting = raft.NodeNonvoting
			}
			portField = portField[:portIdx]
		}
		port, err := strconv.ParseUint(portField, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("peer %q: invalid port: %w", p, err)
		}
		nodes = append(nodes, runtime.NodeSpec{ID: uint32(id), Host: host, Port: uint32(port), Voting: voting})
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no peers parsed from %q", raw)
	}
	return nodes, nil
}

// memStore is the demo state machine: committed entries are interpreted as
// "key=value" and stored verbatim, overwriting any prior value for key.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) apply(payload []byte) {
	key, value, ok := strings.Cut(string(payload), "=")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

