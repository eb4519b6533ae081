// gamenet-receiver — metrics receiver for the gamenet transport.
//
// Polls the delivery queue for the test duration, logging each arrival
// when -v is set, then prints delivery, latency/jitter and throughput metrics. Latency is
// measured against the sender's ts_ms stamp and is only meaningful when
// both ends share a clock (same host, or NTP-synced).
package main

import (
	"flag"
	"math"
	"os"
	"time"

	"github.com/pterm/pterm"

	gamenet "github.com/gamenet-dev/gamenet-go"
)

func main() {
	port := flag.Int("port", 6000, "Local UDP port to listen on")
	duration := flag.Duration("duration", 35*time.Second, "Test duration")
	verbose := flag.Bool("v", false, "Log every arrival")
	flag.Parse()

	if *verbose {
		pterm.EnableDebugMessages()
	}
	pterm.Info.Printfln("Receiver starting: listening on :%d for %v", *port, *duration)

	ep, err := gamenet.Listen(*port)
	if err != nil {
		pterm.Error.Printfln("open endpoint: %v", err)
		os.Exit(1)
	}
	defer ep.Close()

	var reliableLatencies, unreliableLatencies []float64
	var totalBytes int
	start := time.Now()
	deadline := start.Add(*duration)

	for time.Now().Before(deadline) {
		d, ok := ep.Receive()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		totalBytes += len(d.Payload)
		latency := float64(uint32(time.Now().UnixMilli()) - d.Timestamp)
		channel := "UNRELIABLE"
		seq := "N/A"
		if d.Reliable {
			channel = "RELIABLE"
			seq = pterm.Sprintf("%d", d.Seq)
			reliableLatencies = append(reliableLatencies, latency)
		} else {
			unreliableLatencies = append(unreliableLatencies, latency)
		}
		if *verbose {
			pterm.Debug.Printfln("channel=%-10s seq=%-5s ts=%-10d latency=%.0fms", channel, seq, d.Timestamp, latency)
		}
	}

	st := ep.Stats()
	elapsed := time.Since(start).Seconds()

	pterm.Println()
	pterm.DefaultSection.Println("Performance Metrics")
	pterm.Info.Printfln("Total bytes received: %d", totalBytes)
	pterm.Info.Printfln("Average throughput:   %.2f kbps", float64(totalBytes*8)/elapsed/1000)
	pterm.Println()
	pterm.Info.Printfln("Reliable delivered:   %d (dups dropped: %d, skips: %d)", st.ReliableDelivered, st.Duplicates, st.Skips)
	pterm.Info.Printfln("Unreliable delivered: %d", st.UnreliableDelivered)
	pterm.Info.Printfln("Malformed frames:     %d", st.MalformedFrames)
	printLatency("Reliable", reliableLatencies)
	printLatency("Unreliable", unreliableLatencies)
}

func printLatency(label string, samples []float64) {
	if len(samples) == 0 {
		return
	}
	min, max, sum := samples[0], samples[0], 0.0
	for _, s := range samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	mean := sum / float64(len(samples))
	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	stddev := math.Sqrt(variance / float64(len(samples)))

	pterm.Println()
	pterm.Info.Printfln("%s channel latency: avg %.2fms min %.2fms max %.2fms jitter(stddev) %.2fms",
		label, mean, min, max, stddev)
}
