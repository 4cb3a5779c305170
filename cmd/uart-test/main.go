// UART Test - send report messages over the serial link to check the consumer wiring
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-piar/internal/config"
	"github.com/teslashibe/go-piar/pkg/report"
	"github.com/teslashibe/go-piar/pkg/transport"
)

func main() {
	port := flag.String("port", os.Getenv("PIAR_SERIAL_PORT"), "Serial port")
	baud := flag.Int("baud", config.DefaultSerialBaud, "Baud rate")
	class := flag.String("class", "dog", "Class to report")
	percent := flag.Int("percent", 87, "Percent to report")
	count := flag.Int("count", 1, "Number of messages")
	interval := flag.Duration("interval", report.DefaultWindow+100*time.Millisecond, "Spacing between messages")
	list := flag.Bool("list", false, "List serial ports and exit")
	flag.Parse()

	fmt.Println("📡 UART Test")
	fmt.Println("============")

	if *list || *port == "" {
		ports, err := transport.ListPorts()
		if err != nil {
			fmt.Printf("❌ List ports: %v\n", err)
			os.Exit(1)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
		}
		for _, p := range ports {
			fmt.Printf("  %s\n", p)
		}
		if *port == "" {
			fmt.Println("\nUsage: uart-test --port /dev/rfcomm0 [--class cat --percent 91]")
		}
		return
	}

	s, err := transport.OpenSerial(*port, *baud)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	msg := report.Report{Class: *class, Percent: *percent}.Message()
	for i := 0; i < *count; i++ {
		if i > 0 {
			time.Sleep(*interval)
		}
		if err := s.Send(msg); err != nil {
			fmt.Printf("❌ Send %d: %v\n", i+1, err)
			os.Exit(1)
		}
		fmt.Printf("✅ Sent %q to %s\n", msg, s.Path())
	}
}
