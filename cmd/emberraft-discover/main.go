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
emberraft-discover finds emberraftd nodes on the local network using mDNS
(Bonjour/Avahi). It is meant for install/bootstrap scripts that need a
seed list of existing nodes to join, without requiring a hardcoded
address.

Usage:

	emberraft-discover                 # discover nodes (5 second timeout)
	emberraft-discover --timeout 10    # custom timeout in seconds
	emberraft-discover --json          # output as JSON
	emberraft-discover --quiet         # only output addresses (for scripting)
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"emberraft/internal/discovery"
	"emberraft/pkg/cli"
)

const version = "1.0.0"

func main() {
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output host:port addresses (for scripting)")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output host:port addresses (for scripting)")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// mdns logs IPv6 lookup failures at a volume that drowns out our own
	// output; nothing it logs is actionable here.
	log.SetOutput(io.Discard)

	if !*quiet && !*jsonOutput {
		printBanner()
		fmt.Printf("%s Scanning for emberraft nodes on the network (timeout: %ds)...\n\n", cli.InfoIcon(), *timeout)
	}

	nodes, err := discovery.Discover(time.Duration(*timeout) * time.Second)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "%s Discovery failed: %v\n", cli.ErrorIcon(), err)
		}
		os.Exit(1)
	}

	if len(nodes) == 0 {
		if !*quiet && !*jsonOutput {
			fmt.Printf("%s No emberraft nodes found on the network.\n\n", cli.WarningIcon())
			fmt.Printf("%s\n\n", cli.Highlight("TROUBLESHOOTING"))
			fmt.Printf("%s\n", cli.Dimmed("  Common issues:"))
			fmt.Println("    - no emberraftd process has discovery enabled")
			fmt.Println("    - mDNS is blocked by a firewall (UDP port 5353)")
			fmt.Println("    - nodes are on a different network segment")
			fmt.Println()
			fmt.Printf("%s\n", cli.Dimmed("  Try:"))
			fmt.Println("    emberraft-discover --timeout 10   # increase timeout")
			fmt.Println()
		}
		os.Exit(0)
	}

	switch {
	case *jsonOutput:
		outputJSON(nodes)
	case *quiet:
		outputQuiet(nodes)
	default:
		outputHuman(nodes)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s %s\n", cli.Highlight("emberraft-discover"), cli.Dimmed("v"+version))
	fmt.Printf("  %s\n\n", cli.Dimmed("LAN node discovery over mDNS"))
}

func printVersion() {
	fmt.Println()
	fmt.Printf("  %s %s\n", cli.Highlight("emberraft-discover"), cli.Dimmed("v"+version))
	fmt.Printf("  %s\n\n", cli.Dimmed("Copyright (c) 2026 Firefly Software Solutions Inc."))
}

func printUsage() {
	printBanner()
	fmt.Printf("%s\n\n", cli.Dimmed("  Discovers emberraftd nodes on the local network using mDNS, for use by"))
	fmt.Printf("%s\n\n", cli.Dimmed("  install scripts that need a seed list of existing nodes to join."))

	fmt.Printf("%s emberraft-discover [options]\n\n", cli.Highlight("Usage:"))

	fmt.Printf("%s\n\n", cli.Highlight("OPTIONS"))
	fmt.Println("    --timeout <seconds>   Discovery timeout (default: 5)")
	fmt.Println("    --json                Output results as JSON")
	fmt.Println("    --quiet, -q           Only output addresses (for scripting)")
	fmt.Println("    --version, -v         Show version information")
	fmt.Println("    --help, -h            Show this help message")
	fmt.Println()

	fmt.Printf("%s\n\n", cli.Highlight("EXAMPLES"))
	fmt.Println("    emberraft-discover")
	fmt.Println("    emberraft-discover --timeout 10")
	fmt.Println("    emberraft-discover --json")
	fmt.Println("    PEERS=$(emberraft-discover --quiet)")
	fmt.Println()

	fmt.Printf("%s\n\n", cli.Highlight("NETWORK REQUIREMENTS"))
	fmt.Println("    - mDNS uses UDP port 5353 (multicast)")
	fmt.Println("    - nodes must be on the same network segment")
	fmt.Println("    - firewalls must allow mDNS traffic")
	fmt.Println()
}

func outputJSON(nodes []discovery.Node) {
	type nodeOutput struct {
		NodeID   uint32 `json:"node_id"`
		Identity string `json:"identity,omitempty"`
		Address  string `json:"address"`
	}
	out := make([]nodeOutput, len(nodes))
	for i, n := range nodes {
		out[i] = nodeOutput{NodeID: n.NodeID, Identity: n.Identity, Address: fmt.Sprintf("%s:%d", n.Host, n.Port)}
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func outputQuiet(nodes []discovery.Node) {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = fmt.Sprintf("%s:%d", n.Host, n.Port)
	}
	fmt.Println(strings.Join(addrs, ","))
}

func outputHuman(nodes []discovery.Node) {
	fmt.Printf("%s Found %d emberraft node(s)\n\n", cli.SuccessIcon(), len(nodes))
	for i, n := range nodes {
		fmt.Printf("  %s %s\n", cli.Dimmed(fmt.Sprintf("[%d]", i+1)), cli.Highlight(fmt.Sprintf("node %d", n.NodeID)))
		fmt.Printf("      %s %s:%d\n", cli.Dimmed("Address:"), n.Host, n.Port)
		if n.Identity != "" {
			fmt.Printf("      %s  %s\n", cli.Dimmed("Group:"), n.Identity)
		}
		fmt.Println()
	}
	fmt.Printf("%s\n\n", cli.Dimmed("  Tip: use --json for machine-readable output"))
}
