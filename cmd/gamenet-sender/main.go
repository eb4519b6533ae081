// gamenet-sender — traffic generator for the gamenet transport.
//
// Sends a mixed stream of reliable and unreliable mock game-state payloads
// at a fixed packet rate for a fixed duration, then prints a send summary.
package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	gamenet "github.com/gamenet-dev/gamenet-go"
)

type mockState struct {
	ID      int    `json:"id"`
	Note    string `json:"note"`
	Payload string `json:"payload"`
}

func main() {
	remote := flag.String("remote", "127.0.0.1:6000", "Receiver address (host:port)")
	localPort := flag.Int("local", 6001, "Local UDP port")
	rate := flag.Int("rate", 100, "Packets per second")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	reliableRatio := flag.Float64("reliable-ratio", 0.5, "Fraction of packets sent on the reliable channel")
	flag.Parse()

	pterm.Info.Printfln("Sender starting: %s -> %s at %d pps for %v", pterm.Gray("udp"), *remote, *rate, *duration)

	ep, err := gamenet.Open(gamenet.Config{LocalPort: *localPort, Remote: *remote})
	if err != nil {
		pterm.Error.Printfln("open endpoint: %v", err)
		os.Exit(1)
	}
	defer ep.Close()

	filler := strings.Repeat("a", 600)
	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	deadline := time.After(*duration)

	var reliableSent, unreliableSent int
	packetID := 0
loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-ticker.C:
			packetID++
			data, _ := json.Marshal(mockState{ID: packetID, Note: "Mock game state", Payload: filler})
			reliable := rand.Float64() < *reliableRatio
			if err := ep.Send(data, reliable); err != nil {
				pterm.Warning.Printfln("send #%d: %v", packetID, err)
				continue
			}
			if reliable {
				reliableSent++
			} else {
				unreliableSent++
			}
		}
	}

	st := ep.Stats()
	pterm.Println()
	pterm.DefaultSection.Println("Sender Summary")
	pterm.Info.Printfln("Reliable sent:   %d", reliableSent)
	pterm.Info.Printfln("Unreliable sent: %d", unreliableSent)
	pterm.Info.Printfln("Total sent:      %d", reliableSent+unreliableSent)
	pterm.Info.Printfln("Retransmits:     %d", st.Retransmits)
	pterm.Info.Printfln("Retry exhausted: %d", st.RetryExhausted)
}
