// Command mockmixer is a stand-in for the radio mixing server: it binds
// the telemetry UDP port, decodes every control frame, and prints the
// header and JSON body. Useful for verifying the bridge end-to-end
// without the real mixer.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"net"

	"github.com/LeRoy-The-Hatter/Colony-Radio-v2/internal/protocol"
)

func main() {
	addr := flag.String("addr", ":8765", "UDP address to listen on")
	flag.Parse()

	udpAddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		log.Fatalf("bad listen address %q: %v", *addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *addr, err)
	}
	defer conn.Close()

	log.Printf("Mock mixing server listening on %s", conn.LocalAddr())

	buf := make([]byte, 65536+protocol.HeaderSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.Printf("read error: %v", err)
			continue
		}

		frame, err := protocol.Decode(buf[:n])
		if err != nil {
			log.Printf("undecodable frame from %s (%d bytes): %v", remote, n, err)
			continue
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, frame.Body, "  ", "  "); err != nil {
			log.Printf("%s from %s, body not JSON: %q", frame, remote, frame.Body)
			continue
		}
		log.Printf("%s from %s\n  %s", frame, remote, pretty.String())
	}
}
