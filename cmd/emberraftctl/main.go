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
emberraftctl is an interactive admin console for inspecting and operating
a hosted Raft group: show its status, submit a raw entry, or force a node
out of the group. It joins the group as a regular (typically non-voting)
member of the same cluster and drives it through the embedding API
directly — there is no separate admin wire protocol.

Usage:

	emberraftctl --group orders --node-id 9 --port 7009 \
	    --peers 1@localhost:7001,2@localhost:7002,9@localhost:7009/nonvoting
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"emberraft/internal/config"
	"emberraft/internal/raft"
	"emberraft/internal/runtime"
	"emberraft/pkg/cli"
)

const version = "1.0.0"

func main() {
	group := flag.String("group", "", "Raft group identity to attach to (required)")
	nodeID := flag.Uint("node-id", 0, "this console's node ID within the group (required)")
	port := flag.Uint("port", 0, "TCP port this console listens on (required)")
	peersFlag := flag.String("peers", "", "comma-separated id@host:port[/nonvoting] list, including self (required)")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("emberraftctl v%s\n", version)
		return
	}

	if *group == "" || *nodeID == 0 || *port == 0 || *peersFlag == "" {
		cli.ErrMissingArgument("--group, --node-id, --port, --peers", "emberraftctl --group <name> --node-id <id> --port <port> --peers <list>").Exit()
	}

	nodes, err := parsePeers(*peersFlag)
	if err != nil {
		cli.ErrInvalidValue("--peers", *peersFlag, err.Error()).Exit()
	}

	loopCfg := config.DefaultLoopConfig()
	loopCfg.SelfPort = uint16(*port)
	electionCfg := config.DefaultElectionConfig()

	evt, err := runtime.Make(loopCfg, electionCfg, config.DefaultPromotionConfig(), config.DefaultReconnectConfig(), electionCfg.TimeoutMin/5)
	if err != nil {
		cli.ErrConnectionFailed("", strconv.FormatUint(uint64(*port), 10), err).Exit()
	}
	defer evt.Free()
	go evt.Once()

	// AddGroup hands its work to the loop thread, which must already be
	// running for the call to return.
	if err := evt.AddGroup(runtime.GroupSpec{Identity: *group, SelfID: uint32(*nodeID), Nodes: nodes}); err != nil {
		cli.NewCLIError("Failed to join group").WithDetail(err.Error()).Exit()
	}

	runConsole(evt, *group)
}

func runConsole(evt *runtime.Evts, group string) {
	historyPath := filepath.Join(os.TempDir(), "emberraftctl_history")
	commands := []string{"status", "leader", "submit", "addnode", "rmnode", "help", "quit"}
	rl, err := cli.NewLineReader(promptFor(group), historyPath, commands)
	if err != nil {
		cli.NewCLIError("Failed to start console").WithDetail(err.Error()).Exit()
	}
	defer rl.Close()

	help := buildHelp()
	cli.PrintInfo("Attached to group %q. Type \\help for commands.", group)

	for {
		line, err := rl.Readline()
		if err != nil {
			if cli.IsInterrupt(err) {
				continue
			}
			if cli.IsEOF(err) || errors.Is(err, io.EOF) {
				return
			}
			cli.PrintError("read failed: %v", err)
			return
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := strings.TrimPrefix(fields[0], "\\")
		args := fields[1:]

		switch cmd {
		case "quit", "exit", "q":
			return
		case "help", "h":
			help.PrintUsage()
		case "status":
			printStatus(evt, group)
		case "leader":
			printLeader(evt, group)
		case "submit":
			submitEntry(evt, group, args)
		case "addnode":
			addNode(evt, group, args)
		case "rmnode":
			rmNode(evt, group, args)
		default:
			cli.ErrInvalidCommand(cmd).Print()
		}
	}
}

func promptFor(group string) string {
	return fmt.Sprintf("emberraftctl(%s)> ", group)
}

func buildHelp() *cli.HelpFormatter {
	h := cli.NewHelpFormatter("emberraftctl", version)
	h.AddCommand(cli.Command{Name: "status", Description: "show this group's role, term, and commit index"})
	h.AddCommand(cli.Command{Name: "leader", Description: "show the group's known leader"})
	h.AddCommand(cli.Command{Name: "submit", Usage: "submit <key>=<value>", Description: "submit a raw entry and wait for it to commit"})
	h.AddCommand(cli.Command{Name: "addnode", Usage: "addnode <id> <host:port>", Description: "propose adding a node as a non-voting member"})
	h.AddCommand(cli.Command{Name: "rmnode", Usage: "rmnode <id>", Description: "force a node out of the group"})
	h.AddCommand(cli.Command{Name: "help", Description: "show this help"})
	h.AddCommand(cli.Command{Name: "quit", Description: "exit the console"})
	return h
}

func printStatus(evt *runtime.Evts, group string) {
	status, ok := evt.Status(group)
	if !ok {
		cli.PrintError("group %q is not hosted here", group)
		return
	}
	t := cli.NewTable("FIELD", "VALUE")
	t.AddRow("identity", status.Identity)
	t.AddRow("self_id", strconv.FormatUint(uint64(status.SelfID), 10))
	t.AddRow("role", status.Role)
	t.AddRow("term", strconv.FormatUint(status.Term, 10))
	t.AddRow("commit_index", strconv.FormatUint(status.CommitIndex, 10))
	if status.HasLeader {
		t.AddRow("leader_id", strconv.FormatUint(uint64(status.LeaderID), 10))
	} else {
		t.AddRow("leader_id", "(none)")
	}
	t.Print()
}

func printLeader(evt *runtime.Evts, group string) {
	status, ok := evt.Status(group)
	if !ok {
		cli.PrintError("group %q is not hosted here", group)
		return
	}
	if !status.HasLeader {
		cli.PrintWarning("no known leader for %q", group)
		return
	}
	cli.PrintInfo("leader for %q is node %d", group, status.LeaderID)
}

func submitEntry(evt *runtime.Evts, group string, args []string) {
	if len(args) != 1 {
		cli.ErrMissingArgument("<key>=<value>", "submit <key>=<value>").Print()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	index, err := evt.Submit(ctx, group, []byte(args[0]))
	if err != nil {
		cli.PrintError("submit failed: %v", err)
		return
	}
	cli.PrintSuccess("committed at index %d", index)
}

func addNode(evt *runtime.Evts, group string, args []string) {
	if len(args) != 2 {
		cli.ErrMissingArgument("<id> <host:port>", "addnode <id> <host:port>").Print()
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		cli.ErrInvalidValue("id", args[0], "must be a non-negative integer").Print()
		return
	}
	host, portStr, err := splitHostPort(args[1])
	if err != nil {
		cli.ErrInvalidValue("host:port", args[1], err.Error()).Print()
		return
	}
	port, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil {
		cli.ErrInvalidValue("port", portStr, "must be a non-negative integer").Print()
		return
	}
	if err := evt.AddNode(group, uint32(id), host, uint32(port)); err != nil {
		cli.PrintError("addnode failed: %v", err)
		return
	}
	cli.PrintSuccess("proposed node %d (%s:%d) as a non-voting member", id, host, port)
}

func rmNode(evt *runtime.Evts, group string, args []string) {
	if len(args) != 1 {
		cli.ErrMissingArgument("<id>", "rmnode <id>").Print()
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		cli.ErrInvalidValue("id", args[0], "must be a non-negative integer").Print()
		return
	}
	if !cli.ConfirmDestructive(fmt.Sprintf("This will remove node %d from %q.", id, group), "yes") {
		return
	}
	if err := evt.RemoveNode(group, uint32(id)); err != nil {
		cli.PrintError("rmnode failed: %v", err)
		return
	}
	cli.PrintSuccess("proposed removal of node %d", id)
}

func splitHostPort(s string) (string, string, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("expected host:port")
	}
	return s[:idx], s[idx+1:], nil
}

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
		if idx := strings.Index(portField, "/"); idx >= 0 {
			if portField[idx+1:] == "nonvoting" {
				voting = raft.NodeNonvoting
			}
			portField = portField[:idx]
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
